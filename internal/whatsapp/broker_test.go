package whatsapp

import "testing"

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(Event{Kind: EventStatus, Status: StatusConnected})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Status != StatusConnected {
				t.Fatalf("subscriber %d: got status %q", i, evt.Status)
			}
		default:
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}

	// Second cancel must be a no-op.
	cancel()
	b.Publish(Event{Kind: EventQR, Code: "abc"})
}

func TestBrokerSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe()
	defer cancel()

	// Overflow the buffer; Publish must never block.
	for i := 0; i < 100; i++ {
		b.Publish(Event{Kind: EventQR, Code: "qr"})
	}
}
