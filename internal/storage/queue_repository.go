package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/schedule"
)

// QueueRepository owns the notification_queue table: enqueue batches on
// booking, the worker's lease/transition cycle, and the supersede sweep on
// reschedule/cancel.
type QueueRepository struct {
	pool Querier
}

func NewQueueRepository(pool Querier) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// EnqueueBatch persists one evaluated reminder batch inside the booking
// transaction.
func (r *QueueRepository) EnqueueBatch(ctx context.Context, tx pgx.Tx, appointmentID string, items []schedule.Item) error {
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO notification_queue
				(appointment_id, type, recipient, send_at, message_text, status, attempts)
			VALUES ($1, $2, $3, $4, $5, 'queued', 0)
		`, appointmentID, it.Type, it.To, it.SendAt, it.Payload.MessageText)
		if err != nil {
			return err
		}
	}
	return nil
}

// Supersede flips every pending record of an appointment to terminal
// error with a reason, preserving the audit trail. Runs in the same
// transaction that reschedules or cancels the appointment so stale
// reminders cannot fire afterwards.
func (r *QueueRepository) Supersede(ctx context.Context, tx pgx.Tx, appointmentID, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'error', error_message = $2, locked_until = NULL, updated_at = now()
		WHERE appointment_id = $1 AND status IN ('queued', 'processing')
	`, appointmentID, reason)
	return err
}

const queueColumns = `id, appointment_id, type, recipient, send_at, message_text,
	status, attempts, locked_until, COALESCE(error_message, ''), sent_at, created_at, updated_at`

func scanRecord(row pgx.Row) (model.NotificationRecord, error) {
	var n model.NotificationRecord
	err := row.Scan(&n.ID, &n.AppointmentID, &n.Type, &n.To, &n.SendAt, &n.Payload.MessageText,
		&n.Status, &n.Attempts, &n.LockedUntil, &n.ErrorMessage, &n.SentAt, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// FetchDue returns the claimable due-set: queued records, plus processing
// records whose lease expired (a crashed worker must not strand its
// claims).
func (r *QueueRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.NotificationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM notification_queue
		WHERE send_at <= $1
			AND (status = 'queued' OR (status = 'processing' AND locked_until < $1))
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		n, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Claim attempts the lease: a single conditional update observed by at
// most one winner under per-row write ordering. False means another
// worker got there first (or the record changed underneath) — skip it
// this tick.
func (r *QueueRepository) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'processing', locked_until = $3, updated_at = now()
		WHERE id = $1
			AND status IN ('queued', 'processing')
			AND (locked_until IS NULL OR locked_until < $2)
	`, id, now, leaseUntil)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QueueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'sent', sent_at = $2, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id, sentAt)
	return err
}

// MarkFailed records a delivery failure: requeue with a future send_at
// while attempts remain, terminal error once they run out. Either way the
// lease is released. A terminal row keeps its last send_at; it will never
// fire again, so a backoff time on it would just confuse the audit trail.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, attempts int, terminal bool, nextSendAt time.Time, errMsg string) error {
	if terminal {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_queue
			SET status = $2, attempts = $3, error_message = $4, locked_until = NULL, updated_at = now()
			WHERE id = $1
		`, id, model.QueueStatusError, attempts, errMsg)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = $2, attempts = $3, send_at = $4, error_message = $5, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id, model.QueueStatusQueued, attempts, nextSendAt, errMsg)
	return err
}

// ListByAppointment exposes an appointment's notification history.
func (r *QueueRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]model.NotificationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM notification_queue
		WHERE appointment_id = $1
		ORDER BY send_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		n, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
