package settings

import (
	"context"
	"sync"
	"time"

	"github.com/torim-app/torim/internal/timeutil"
)

// DefaultCacheTTL keeps settings lookups off the hot path. Staleness up to
// the TTL is acceptable; rules change rarely and the cache is per-process.
const DefaultCacheTTL = 10 * time.Second

// Store is the persistence surface the cache sits in front of.
type Store interface {
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, s Settings) error
}

// Cache is a TTL cache over a settings Store. A missing document or an
// invalid stored document falls back to the built-in defaults.
type Cache struct {
	store Store
	clock timeutil.Clock
	ttl   time.Duration

	mu     sync.Mutex
	value  Settings
	expiry time.Time
	primed bool
}

func NewCache(store Store, clock timeutil.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{store: store, clock: clock, ttl: ttl}
}

// Get returns the current settings, hitting the store only when the cached
// value has expired. Store errors fall back to defaults rather than
// failing the caller; a reminder batch is better scheduled with default
// rules than not at all.
func (c *Cache) Get(ctx context.Context) Settings {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primed && now.Before(c.expiry) {
		return c.value
	}

	s, ok, err := c.store.Load(ctx)
	if err != nil || !ok {
		s = Defaults()
	} else if s, err = Validate(s); err != nil {
		s = Defaults()
	}
	c.value = s
	c.expiry = now.Add(c.ttl)
	c.primed = true
	return s
}

// Put validates, persists, and immediately refreshes the cached value.
func (c *Cache) Put(ctx context.Context, s Settings) (Settings, error) {
	valid, err := Validate(s)
	if err != nil {
		return Settings{}, err
	}
	if err := c.store.Save(ctx, valid); err != nil {
		return Settings{}, err
	}
	c.mu.Lock()
	c.value = valid
	c.expiry = c.clock.Now().Add(c.ttl)
	c.primed = true
	c.mu.Unlock()
	return valid, nil
}
