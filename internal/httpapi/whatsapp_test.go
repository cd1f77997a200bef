package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torim-app/torim/internal/whatsapp"
)

type fakeChannel struct {
	status  string
	phone   string
	qrCode  string
	logouts int
}

func (f *fakeChannel) Status() (string, string, string) { return f.status, f.phone, f.qrCode }
func (f *fakeChannel) Logout(context.Context) error     { f.logouts++; return nil }
func (f *fakeChannel) Connect(context.Context) error    { return nil }

func TestWhatsAppQR(t *testing.T) {
	ch := &fakeChannel{status: whatsapp.StatusWaitingQR, qrCode: "pairing-code"}
	h := NewWhatsAppHandler(ch, whatsapp.NewBroker(), discardLogger)

	rec := httptest.NewRecorder()
	h.QR(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/qr", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pairing-code") {
		t.Fatalf("expected QR payload, got %s", rec.Body.String())
	}

	ch.qrCode = ""
	rec = httptest.NewRecorder()
	h.QR(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/qr", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without outstanding QR, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeNoQR) {
		t.Fatalf("expected %s, got %s", CodeNoQR, rec.Body.String())
	}
}

func TestWhatsAppStatus(t *testing.T) {
	ch := &fakeChannel{status: whatsapp.StatusConnected, phone: "+972541119999"}
	h := NewWhatsAppHandler(ch, whatsapp.NewBroker(), discardLogger)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, whatsapp.StatusConnected) || !strings.Contains(body, "+972541119999") {
		t.Fatalf("unexpected status body %s", body)
	}
}

func TestWhatsAppSocketStreamsEvents(t *testing.T) {
	ch := &fakeChannel{status: whatsapp.StatusDisconnected}
	broker := whatsapp.NewBroker()
	h := NewWhatsAppHandler(ch, broker, discardLogger)

	srv := httptest.NewServer(http.HandlerFunc(h.Socket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first whatsapp.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if first.Kind != whatsapp.EventStatus || first.Status != whatsapp.StatusDisconnected {
		t.Fatalf("unexpected initial event %+v", first)
	}

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(time.Second)
	for broker.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	broker.Publish(whatsapp.Event{Kind: whatsapp.EventQR, Code: "fresh-qr"})

	var second whatsapp.Event
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read published event: %v", err)
	}
	if second.Kind != whatsapp.EventQR || second.Code != "fresh-qr" {
		t.Fatalf("unexpected event %+v", second)
	}
}
