package httpapi

import "net/http"

// Handlers groups the API surface for route registration.
type Handlers struct {
	Consultants  *ConsultantHandler
	Appointments *AppointmentHandler
	Settings     *SettingsHandler
	WhatsApp     *WhatsAppHandler
}

// Register mounts every route on the mux using method patterns.
func (h Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/consultants", h.Consultants.List)
	mux.HandleFunc("POST /api/consultants", h.Consultants.Create)
	mux.HandleFunc("PATCH /api/consultants/{id}", h.Consultants.Update)
	mux.HandleFunc("DELETE /api/consultants/{id}", h.Consultants.Delete)

	mux.HandleFunc("GET /api/appointments", h.Appointments.List)
	mux.HandleFunc("POST /api/appointments", h.Appointments.Create)
	mux.HandleFunc("GET /api/appointments/{id}", h.Appointments.Get)
	mux.HandleFunc("PATCH /api/appointments/{id}", h.Appointments.Update)
	mux.HandleFunc("DELETE /api/appointments/{id}", h.Appointments.Delete)

	mux.HandleFunc("GET /api/settings", h.Settings.Get)
	mux.HandleFunc("PUT /api/settings", h.Settings.Put)

	if h.WhatsApp != nil {
		mux.HandleFunc("GET /api/whatsapp/qr", h.WhatsApp.QR)
		mux.HandleFunc("GET /api/whatsapp/status", h.WhatsApp.Status)
		mux.HandleFunc("POST /api/whatsapp/logout", h.WhatsApp.Logout)
		mux.HandleFunc("POST /api/whatsapp/refresh", h.WhatsApp.Refresh)
	}
}

// RegisterSocket mounts the websocket endpoint. It goes on a mux outside
// the timeout middleware, which would otherwise block the hijack the
// upgrade needs.
func (h Handlers) RegisterSocket(mux *http.ServeMux) {
	if h.WhatsApp != nil {
		mux.HandleFunc("GET /ws", h.WhatsApp.Socket)
	}
}
