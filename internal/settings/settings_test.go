package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/torim-app/torim/internal/timeutil"
)

type fakeStore struct {
	settings Settings
	present  bool
	err      error
	loads    int
	saved    *Settings
}

func (f *fakeStore) Load(_ context.Context) (Settings, bool, error) {
	f.loads++
	return f.settings, f.present, f.err
}

func (f *fakeStore) Save(_ context.Context, s Settings) error {
	f.saved = &s
	return nil
}

func TestDefaults_ThreeRules(t *testing.T) {
	def := Defaults()
	if len(def.Reminders) != 3 {
		t.Fatalf("expected 3 default rules, got %d", len(def.Reminders))
	}
	if !def.Reminders[0].Immediate {
		t.Fatal("first default rule must be immediate")
	}
	if def.Reminders[1].OffsetDays != -1 || def.Reminders[1].Hour != 8 {
		t.Fatalf("expected day-before at 08:00, got %+v", def.Reminders[1])
	}
	if def.Reminders[2].OffsetDays != 0 || def.Reminders[2].Hour != 8 {
		t.Fatalf("expected morning-of at 08:00, got %+v", def.Reminders[2])
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []Settings{
		{},
		{Reminders: []ReminderRule{{Active: true, Hour: 24, Template: "x"}}},
		{Reminders: []ReminderRule{{Active: true, Minute: 60, Template: "x"}}},
		{Reminders: []ReminderRule{{Active: true, Template: "  "}}},
	}
	for i, s := range cases {
		if _, err := Validate(s); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestRender_SubstitutesTokens(t *testing.T) {
	def := Defaults()
	got := def.Render("שלום {שם}, {תאריך} {שעה} עם {יועץ}", Tokens{
		ClientName:     "דני",
		ConsultantName: "רות",
		DateHe:         "28/08/2025",
		TimeHe:         "10:00",
	})
	want := "שלום דני, 28/08/2025 10:00 עם רות"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCache_TTL(t *testing.T) {
	store := &fakeStore{settings: Defaults(), present: true}
	base := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	clock := &steppingClock{now: base}
	c := NewCache(store, clock, 10*time.Second)

	c.Get(context.Background())
	c.Get(context.Background())
	if store.loads != 1 {
		t.Fatalf("expected 1 load within TTL, got %d", store.loads)
	}

	clock.now = base.Add(11 * time.Second)
	c.Get(context.Background())
	if store.loads != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", store.loads)
	}
}

func TestCache_FallsBackToDefaults(t *testing.T) {
	store := &fakeStore{err: errors.New("store down")}
	c := NewCache(store, timeutil.FixedClock{Instant: time.Now().UTC()}, time.Second)
	got := c.Get(context.Background())
	if len(got.Reminders) != 3 {
		t.Fatalf("expected default rules on store error, got %d", len(got.Reminders))
	}
}

func TestCache_PutRefreshes(t *testing.T) {
	store := &fakeStore{}
	c := NewCache(store, timeutil.FixedClock{Instant: time.Now().UTC()}, time.Minute)

	custom := Settings{Reminders: []ReminderRule{{Active: true, Immediate: true, Template: "hi {שם}"}}}
	saved, err := c.Put(context.Background(), custom)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if store.saved == nil {
		t.Fatal("expected settings persisted")
	}
	if saved.Placeholders.ClientName == "" {
		t.Fatal("expected placeholder defaults filled in")
	}

	got := c.Get(context.Background())
	if len(got.Reminders) != 1 || got.Reminders[0].Template != "hi {שם}" {
		t.Fatalf("expected cached value refreshed by Put, got %+v", got)
	}
	if store.loads != 0 {
		t.Fatalf("expected no store load after Put, got %d", store.loads)
	}
}

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time { return c.now }
