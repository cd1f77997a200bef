package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/torim-app/torim/internal/whatsapp"
)

// Channel is the slice of the WhatsApp client the admin endpoints need.
type Channel interface {
	Status() (status, phone, qrCode string)
	Logout(ctx context.Context) error
	Connect(ctx context.Context) error
}

type WhatsAppHandler struct {
	channel  Channel
	broker   *whatsapp.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWhatsAppHandler(channel Channel, broker *whatsapp.Broker, logger *slog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		channel: channel,
		broker:  broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The admin UI is served from a different origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *WhatsAppHandler) QR(w http.ResponseWriter, r *http.Request) {
	_, _, qrCode := h.channel.Status()
	if qrCode == "" {
		writeError(w, http.StatusNotFound, CodeNoQR, "No QR available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": "qr", "data": qrCode})
}

func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, phone, _ := h.channel.Status()
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "phone": phone})
}

func (h *WhatsAppHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Logout(r.Context()); err != nil {
		h.logger.Error("whatsapp logout failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *WhatsAppHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Connect(r.Context()); err != nil {
		h.logger.Error("whatsapp refresh failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Socket streams QR and connection-status events to the admin UI. The
// current status goes out first so a client connecting mid-session does
// not wait for the next transition.
func (h *WhatsAppHandler) Socket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.broker.Subscribe()
	defer cancel()

	status, phone, qrCode := h.channel.Status()
	if err := conn.WriteJSON(whatsapp.Event{Kind: whatsapp.EventStatus, Status: status, Phone: phone}); err != nil {
		return
	}
	if qrCode != "" {
		if err := conn.WriteJSON(whatsapp.Event{Kind: whatsapp.EventQR, Code: qrCode}); err != nil {
			return
		}
	}

	// Drain reads so close frames and pings are processed; inbound
	// payloads are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
