package whatsapp

import "sync"

// Event kinds pushed to subscribers.
const (
	EventQR     = "qr"
	EventStatus = "status"
)

// Connection statuses reported over EventStatus.
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusWaitingQR    = "waiting_qr"
	StatusConnected    = "connected"
)

// Event is one channel-state change: either a fresh QR code to render
// or a connection status transition.
type Event struct {
	Kind   string `json:"kind"`
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Broker fans channel events out to live subscribers. Subscribers that
// fall behind lose events rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener. The returned cancel func removes
// the subscription and closes its channel; it is safe to call twice.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
