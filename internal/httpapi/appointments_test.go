package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/torim-app/torim/internal/outbox"
	"github.com/torim-app/torim/internal/schedule"
	"github.com/torim-app/torim/internal/settings"
	"github.com/torim-app/torim/internal/storage"
	"github.com/torim-app/torim/internal/timeutil"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticSettings struct{}

func (staticSettings) Load(_ context.Context) (settings.Settings, bool, error) {
	return settings.Defaults(), true, nil
}
func (staticSettings) Save(_ context.Context, _ settings.Settings) error { return nil }

func newTestHandler(t *testing.T, now time.Time) (*AppointmentHandler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	zone, err := timeutil.LoadZone("")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	clock := timeutil.FixedClock{Instant: now}
	cache := settings.NewCache(staticSettings{}, clock, settings.DefaultCacheTTL)

	h := NewAppointmentHandler(
		storage.NewAppointmentRepository(mock),
		storage.NewConsultantRepository(mock),
		storage.NewQueueRepository(mock),
		outbox.NewRepository(),
		cache,
		schedule.NewEvaluator(zone, clock),
		zone,
		nil,
		discardLogger,
	)
	return h, mock
}

func consultantRow(id string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{"id", "full_name", "phone", "specialties", "is_active", "created_at", "updated_at"}).
		AddRow(id, "יועץ לדוגמה", "+972541119999", []string{"career"}, true, now, now)
}

func appointmentColumnsRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "consultant_id", "client_name", "client_phone", "start_at", "end_at",
		"duration_minutes", "title", "notes", "status", "created_at", "updated_at",
	})
}

func postAppointment(h *AppointmentHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreateAppointment(t *testing.T) {
	now := time.Date(2025, 8, 26, 7, 0, 0, 0, time.UTC)
	h, mock := newTestHandler(t, now)

	start := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	mock.ExpectQuery("SELECT id, full_name").
		WithArgs("c1").
		WillReturnRows(consultantRow("c1"))
	mock.ExpectQuery("FROM appointments").
		WithArgs("c1").
		WillReturnRows(appointmentColumnsRows())
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("c1", "דני", "+972541112222", start, end, 45, "דני — יועץ לדוגמה", "", "scheduled").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	// Default rules: created now, day before 08:00, morning of 08:00.
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO notification_queue").
			WithArgs("a1", pgxmock.AnyArg(), "+972541112222", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "a1", "booking.appointment.booked.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM appointments").
		WithArgs("a1").
		WillReturnRows(appointmentColumnsRows().
			AddRow("a1", "c1", "דני", "+972541112222", start, end, 45, "דני — יועץ לדוגמה", "", "scheduled", now, now))

	rec := postAppointment(h, `{
		"consultantId": "c1",
		"clientName": "דני",
		"clientPhone": "0541112222",
		"start": "2025-08-28T10:00"
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "a1" {
		t.Fatalf("unexpected id %v", resp["id"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// stallingNotifier stands in for the queue worker and blocks inside Tick
// until released.
type stallingNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (n *stallingNotifier) Tick(context.Context) {
	close(n.started)
	<-n.release
}

func TestCreateAppointmentDoesNotWaitOnDelivery(t *testing.T) {
	now := time.Date(2025, 8, 26, 7, 0, 0, 0, time.UTC)
	h, mock := newTestHandler(t, now)
	notifier := &stallingNotifier{started: make(chan struct{}), release: make(chan struct{})}
	h.notifier = notifier
	defer close(notifier.release)

	start := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	mock.ExpectQuery("SELECT id, full_name").
		WithArgs("c1").
		WillReturnRows(consultantRow("c1"))
	mock.ExpectQuery("FROM appointments").
		WithArgs("c1").
		WillReturnRows(appointmentColumnsRows())
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("c1", "דני", "+972541112222", start, end, 45, "דני — יועץ לדוגמה", "", "scheduled").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO notification_queue").
			WithArgs("a1", pgxmock.AnyArg(), "+972541112222", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "a1", "booking.appointment.booked.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM appointments").
		WithArgs("a1").
		WillReturnRows(appointmentColumnsRows().
			AddRow("a1", "c1", "דני", "+972541112222", start, end, 45, "דני — יועץ לדוגמה", "", "scheduled", now, now))

	// The notifier never gets released during the request; a synchronous
	// nudge would deadlock here instead of returning 201.
	rec := postAppointment(h, `{
		"consultantId": "c1",
		"clientName": "דני",
		"clientPhone": "0541112222",
		"start": "2025-08-28T10:00"
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case <-notifier.started:
	case <-time.After(time.Second):
		t.Fatal("queue pass was never triggered")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAppointmentSupersedesReminders(t *testing.T) {
	now := time.Date(2025, 8, 26, 7, 0, 0, 0, time.UTC)
	h, mock := newTestHandler(t, now)

	oldStart := time.Date(2025, 8, 28, 7, 0, 0, 0, time.UTC)
	oldEnd := oldStart.Add(45 * time.Minute)
	newStart := time.Date(2025, 8, 29, 7, 0, 0, 0, time.UTC)
	newEnd := newStart.Add(45 * time.Minute)

	stored := appointmentColumnsRows().
		AddRow("a1", "c1", "דני", "+972541112222", oldStart, oldEnd, 45, "דני — יועץ לדוגמה", "", "scheduled", now, now)

	mock.ExpectQuery("FROM appointments").
		WithArgs("a1").
		WillReturnRows(stored)
	mock.ExpectQuery("SELECT id, full_name").
		WithArgs("c1").
		WillReturnRows(consultantRow("c1"))
	// The appointment's own slot comes back from the scan and must not
	// conflict with itself.
	mock.ExpectQuery("FROM appointments").
		WithArgs("c1").
		WillReturnRows(appointmentColumnsRows().
			AddRow("a1", "c1", "דני", "+972541112222", oldStart, oldEnd, 45, "דני — יועץ לדוגמה", "", "scheduled", now, now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").
		WithArgs("a1", "c1", "דני", "+972541112222", newStart, newEnd, 45, "דני — יועץ לדוגמה", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Pending reminders for the old slot go terminal before the fresh
	// batch is enqueued.
	mock.ExpectExec("UPDATE notification_queue").
		WithArgs("a1", "rescheduled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO notification_queue").
			WithArgs("a1", pgxmock.AnyArg(), "+972541112222", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "a1", "booking.appointment.rescheduled.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM appointments").
		WithArgs("a1").
		WillReturnRows(appointmentColumnsRows().
			AddRow("a1", "c1", "דני", "+972541112222", newStart, newEnd, 45, "דני — יועץ לדוגמה", "", "scheduled", now, now))

	req := httptest.NewRequest(http.MethodPatch, "/api/appointments/a1", strings.NewReader(`{"start":"2025-08-29T10:00"}`))
	req.SetPathValue("id", "a1")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "a1" {
		t.Fatalf("unexpected id %v", resp["id"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	now := time.Date(2025, 8, 26, 7, 0, 0, 0, time.UTC)
	h, mock := newTestHandler(t, now)

	busyStart := time.Date(2025, 8, 28, 7, 30, 0, 0, time.UTC)
	busyEnd := busyStart.Add(45 * time.Minute)

	mock.ExpectQuery("SELECT id, full_name").
		WithArgs("c1").
		WillReturnRows(consultantRow("c1"))
	mock.ExpectQuery("FROM appointments").
		WithArgs("c1").
		WillReturnRows(appointmentColumnsRows().
			AddRow("busy", "c1", "רות", "+972541113333", busyStart, busyEnd, 45, "רות — יועץ לדוגמה", "", "scheduled", now, now))

	rec := postAppointment(h, `{
		"consultantId": "c1",
		"clientName": "דני",
		"clientPhone": "0541112222",
		"start": "2025-08-28T10:00"
	}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Code    string `json:"code"`
		Details struct {
			Conflict struct {
				ID string `json:"id"`
			} `json:"conflict"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != CodeConflict {
		t.Fatalf("expected code %s, got %s", CodeConflict, resp.Code)
	}
	if resp.Details.Conflict.ID != "busy" {
		t.Fatalf("expected conflicting record attached, got %+v", resp.Details)
	}
	// Nothing may have been written.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAppointmentInvalidConsultant(t *testing.T) {
	now := time.Date(2025, 8, 26, 7, 0, 0, 0, time.UTC)
	h, mock := newTestHandler(t, now)

	mock.ExpectQuery("SELECT id, full_name").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	rec := postAppointment(h, `{
		"consultantId": "ghost",
		"clientName": "דני",
		"clientPhone": "0541112222",
		"start": "2025-08-28T10:00"
	}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), CodeInvalidConsultant) {
		t.Fatalf("expected %s, got %s", CodeInvalidConsultant, rec.Body.String())
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	h, _ := newTestHandler(t, time.Now().UTC())

	cases := []struct {
		name string
		body string
	}{
		{"missing consultant", `{"clientName":"x","clientPhone":"0541112222","start":"2025-08-28T10:00"}`},
		{"bad phone", `{"consultantId":"c1","clientName":"x","clientPhone":"123","start":"2025-08-28T10:00"}`},
		{"missing start", `{"consultantId":"c1","clientName":"x","clientPhone":"0541112222"}`},
		{"not json", `{{{`},
	}
	for _, c := range cases {
		rec := postAppointment(h, c.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", c.name, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), CodeValidation) {
			t.Fatalf("%s: expected %s, got %s", c.name, CodeValidation, rec.Body.String())
		}
	}
}
