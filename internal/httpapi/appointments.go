package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/torim-app/torim/internal/conflict"
	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/outbox"
	"github.com/torim-app/torim/internal/schedule"
	"github.com/torim-app/torim/internal/settings"
	"github.com/torim-app/torim/internal/storage"
	"github.com/torim-app/torim/internal/timeutil"
)

// DefaultDurationMinutes applies when a booking names neither an end time
// nor a duration.
const DefaultDurationMinutes = 45

// Notifier triggers an immediate queue pass so the booking-time reminder
// goes out without waiting for the next scheduled tick. Delivery failures
// stay inside the queue; the booking response never reports them.
type Notifier interface {
	Tick(ctx context.Context)
}

type AppointmentHandler struct {
	appts       *storage.AppointmentRepository
	consultants *storage.ConsultantRepository
	queue       *storage.QueueRepository
	outboxRepo  *outbox.Repository
	settings    *settings.Cache
	eval        *schedule.Evaluator
	zone        timeutil.Zone
	notifier    Notifier
	logger      *slog.Logger
}

func NewAppointmentHandler(
	appts *storage.AppointmentRepository,
	consultants *storage.ConsultantRepository,
	queue *storage.QueueRepository,
	outboxRepo *outbox.Repository,
	settingsCache *settings.Cache,
	eval *schedule.Evaluator,
	zone timeutil.Zone,
	notifier Notifier,
	logger *slog.Logger,
) *AppointmentHandler {
	return &AppointmentHandler{
		appts:       appts,
		consultants: consultants,
		queue:       queue,
		outboxRepo:  outboxRepo,
		settings:    settingsCache,
		eval:        eval,
		zone:        zone,
		notifier:    notifier,
		logger:      logger,
	}
}

type appointmentRequest struct {
	ConsultantID    *string `json:"consultantId"`
	ClientName      *string `json:"clientName"`
	ClientPhone     *string `json:"clientPhone"`
	Start           *string `json:"start"`
	End             *string `json:"end"`
	DurationMinutes *int    `json:"durationMinutes"`
	Notes           *string `json:"notes"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter storage.ListFilter
	filter.ConsultantID = strings.TrimSpace(r.URL.Query().Get("consultantId"))
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := h.zone.ToAbsolute(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid from")
			return
		}
		filter.From = &t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := h.zone.ToAbsolute(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid to")
			return
		}
		filter.To = &t
	}

	items, err := h.appts.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to list appointments")
		return
	}
	if items == nil {
		items = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Appointment not found")
			return
		}
		h.logger.Error("load appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load appointment")
		return
	}
	notifications, err := h.queue.ListByAppointment(r.Context(), id)
	if err != nil {
		h.logger.Error("load notifications failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load notifications")
		return
	}
	if notifications == nil {
		notifications = []model.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment":   appt,
		"notifications": notifications,
	})
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json body")
		return
	}
	if req.ConsultantID == nil || strings.TrimSpace(*req.ConsultantID) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "consultantId is required")
		return
	}
	if req.ClientName == nil || strings.TrimSpace(*req.ClientName) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "clientName is required")
		return
	}
	if req.ClientPhone == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "clientPhone is required")
		return
	}
	phone, err := NormalizePhone(*req.ClientPhone)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid E.164 phone")
		return
	}
	if req.Start == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "start is required")
		return
	}

	ctx := r.Context()
	consultant, err := h.consultants.Get(ctx, strings.TrimSpace(*req.ConsultantID))
	if err != nil && !storage.IsNotFound(err) {
		h.logger.Error("load consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load consultant")
		return
	}
	if storage.IsNotFound(err) || !consultant.IsActive {
		writeError(w, http.StatusBadRequest, CodeInvalidConsultant, "Consultant not found or inactive")
		return
	}

	appt := model.Appointment{
		ConsultantID: consultant.ID,
		ClientName:   strings.TrimSpace(*req.ClientName),
		ClientPhone:  phone,
		Status:       model.AppointmentScheduled,
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}
	if !h.resolveTimes(w, &appt, req.Start, req.End, req.DurationMinutes) {
		return
	}
	appt.Title = appt.ClientName + " — " + consultant.FullName

	// Conflict gate before any write. The scan covers scheduled
	// appointments only; cancelled ones do not block a slot.
	conflicting, found, err := h.findConflict(ctx, appt.ConsultantID, appt.Start, appt.End, "")
	if err != nil {
		h.logger.Error("conflict check failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to check conflicts")
		return
	}
	if found {
		writeErrorDetails(w, http.StatusConflict, CodeConflict, "Overlapping appointment", map[string]any{"conflict": conflicting})
		return
	}

	items := h.eval.Evaluate(h.settings.Get(ctx), appt.Start, appt.ClientName, consultant.FullName, appt.ClientPhone)

	tx, err := h.appts.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.appts.Create(ctx, tx, &appt)
	if err != nil {
		h.logger.Error("create appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to create appointment")
		return
	}
	if err := h.queue.EnqueueBatch(ctx, tx, id, items); err != nil {
		h.logger.Error("enqueue notifications failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to enqueue notifications")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentBooked, id, &appt); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to commit")
		return
	}

	h.nudge(ctx)

	created, err := h.appts.Get(ctx, id)
	if err != nil {
		h.logger.Error("load created appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json body")
		return
	}

	ctx := r.Context()
	appt, err := h.appts.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Appointment not found")
			return
		}
		h.logger.Error("load appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load appointment")
		return
	}

	if req.ConsultantID != nil {
		appt.ConsultantID = strings.TrimSpace(*req.ConsultantID)
	}
	if req.ClientName != nil {
		name := strings.TrimSpace(*req.ClientName)
		if name == "" {
			writeError(w, http.StatusBadRequest, CodeValidation, "clientName cannot be empty")
			return
		}
		appt.ClientName = name
	}
	if req.ClientPhone != nil {
		phone, err := NormalizePhone(*req.ClientPhone)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid E.164 phone")
			return
		}
		appt.ClientPhone = phone
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}

	start := appt.Start.UTC().Format(time.RFC3339Nano)
	if req.Start != nil {
		start = *req.Start
	}
	var end *string
	if req.End != nil {
		end = req.End
	}
	duration := req.DurationMinutes
	if duration == nil && req.End == nil {
		// Keep the stored duration when neither bound changes shape.
		d := appt.DurationMinutes
		duration = &d
	}
	if !h.resolveTimes(w, &appt, &start, end, duration) {
		return
	}

	consultant, err := h.consultants.Get(ctx, appt.ConsultantID)
	if err != nil && !storage.IsNotFound(err) {
		h.logger.Error("load consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load consultant")
		return
	}
	if storage.IsNotFound(err) || !consultant.IsActive {
		writeError(w, http.StatusBadRequest, CodeInvalidConsultant, "Consultant not found or inactive")
		return
	}
	appt.Title = appt.ClientName + " — " + consultant.FullName

	conflicting, found, err := h.findConflict(ctx, appt.ConsultantID, appt.Start, appt.End, id)
	if err != nil {
		h.logger.Error("conflict check failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to check conflicts")
		return
	}
	if found {
		writeErrorDetails(w, http.StatusConflict, CodeConflict, "Overlapping appointment", map[string]any{"conflict": conflicting})
		return
	}

	items := h.eval.Evaluate(h.settings.Get(ctx), appt.Start, appt.ClientName, consultant.FullName, appt.ClientPhone)

	tx, err := h.appts.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.appts.Update(ctx, tx, &appt); err != nil {
		h.logger.Error("update appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to update appointment")
		return
	}
	// Pending reminders describe the old time slot; retire them before
	// enqueuing the fresh batch.
	if err := h.queue.Supersede(ctx, tx, id, "rescheduled"); err != nil {
		h.logger.Error("supersede notifications failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to supersede notifications")
		return
	}
	if err := h.queue.EnqueueBatch(ctx, tx, id, items); err != nil {
		h.logger.Error("enqueue notifications failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to enqueue notifications")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentRescheduled, id, &appt); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to commit")
		return
	}

	h.nudge(ctx)

	updated, err := h.appts.Get(ctx, id)
	if err != nil {
		h.logger.Error("load updated appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx := r.Context()
	appt, err := h.appts.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Appointment not found")
			return
		}
		h.logger.Error("load appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load appointment")
		return
	}

	tx, err := h.appts.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.appts.Cancel(ctx, tx, id); err != nil {
		h.logger.Error("cancel appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to cancel appointment")
		return
	}
	if err := h.queue.Supersede(ctx, tx, id, "cancelled"); err != nil {
		h.logger.Error("supersede notifications failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to supersede notifications")
		return
	}
	appt.Status = model.AppointmentCancelled
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentCancelled, id, &appt); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to commit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// resolveTimes parses start/end, fills the duration default, and enforces
// end > start. It writes the error response itself and reports success.
func (h *AppointmentHandler) resolveTimes(w http.ResponseWriter, appt *model.Appointment, start, end *string, durationMinutes *int) bool {
	startAt, err := h.zone.ToAbsolute(*start)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid start")
		return false
	}

	duration := DefaultDurationMinutes
	if durationMinutes != nil {
		if *durationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, CodeValidation, "durationMinutes must be positive")
			return false
		}
		duration = *durationMinutes
	}

	endAt := timeutil.AddMinutes(startAt, duration)
	if end != nil && strings.TrimSpace(*end) != "" {
		endAt, err = h.zone.ToAbsolute(*end)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid end")
			return false
		}
		duration = int(endAt.Sub(startAt) / time.Minute)
	}
	if !endAt.After(startAt) {
		writeError(w, http.StatusBadRequest, CodeValidation, "end must be after start")
		return false
	}

	appt.Start = startAt
	appt.End = endAt
	appt.DurationMinutes = duration
	return true
}

func (h *AppointmentHandler) findConflict(ctx context.Context, consultantID string, start, end time.Time, excludeID string) (model.Appointment, bool, error) {
	candidates, err := h.appts.ListScheduledByConsultant(ctx, consultantID)
	if err != nil {
		return model.Appointment{}, false, err
	}
	found, ok := conflict.Find(candidates, start, end, excludeID)
	return found, ok, nil
}

func (h *AppointmentHandler) insertAppointmentEvent(ctx context.Context, tx pgx.Tx, eventType, id string, appt *model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointmentId": id,
		"consultantId":  appt.ConsultantID,
		"clientPhone":   appt.ClientPhone,
		"start":         appt.Start.UTC().Format(time.RFC3339),
		"end":           appt.End.UTC().Format(time.RFC3339),
		"status":        appt.Status,
	})
	if err != nil {
		return err
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("write outbox event failed", "err", err, "event", eventType)
		return err
	}
	return nil
}

// nudge runs one queue pass so due reminders (the booking-time one in
// particular) go out right away. Best effort and detached from the
// request: a tick can spend a full send timeout per record, and the
// booking response must not wait on delivery. The worker tick owns
// retries; channel errors never surface here.
func (h *AppointmentHandler) nudge(ctx context.Context) {
	if h.notifier == nil {
		return
	}
	go h.notifier.Tick(context.WithoutCancel(ctx))
}
