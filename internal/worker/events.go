package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/outbox"
	"github.com/torim-app/torim/libs/db"
)

// OutboxSink publishes delivery outcomes through the transactional outbox.
type OutboxSink struct {
	pool *db.Pool
	repo *outbox.Repository
}

func NewOutboxSink(pool *db.Pool, repo *outbox.Repository) *OutboxSink {
	return &OutboxSink{pool: pool, repo: repo}
}

func (s *OutboxSink) NotificationSent(ctx context.Context, rec model.NotificationRecord, sentAt time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"appointmentId":  rec.AppointmentID,
		"notificationId": rec.ID,
		"type":           rec.Type,
		"to":             rec.To,
		"sentAt":         sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.insert(ctx, rec, outbox.EventNotificationSent, payload)
}

func (s *OutboxSink) NotificationFailed(ctx context.Context, rec model.NotificationRecord, reason string, terminal bool) error {
	payload, err := json.Marshal(map[string]any{
		"appointmentId":  rec.AppointmentID,
		"notificationId": rec.ID,
		"type":           rec.Type,
		"to":             rec.To,
		"reason":         reason,
		"terminal":       terminal,
		"failedAt":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.insert(ctx, rec, outbox.EventNotificationFailed, payload)
}

func (s *OutboxSink) insert(ctx context.Context, rec model.NotificationRecord, eventType string, payload []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   rec.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
