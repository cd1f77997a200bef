package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/torim-app/torim/internal/model"
)

type AppointmentRepository struct {
	pool Querier
}

func NewAppointmentRepository(pool Querier) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `id, consultant_id, client_name, client_phone, start_at, end_at,
	duration_minutes, title, COALESCE(notes, ''), status, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.ConsultantID, &a.ClientName, &a.ClientPhone, &a.Start, &a.End,
		&a.DurationMinutes, &a.Title, &a.Notes, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(consultant_id, client_name, client_phone, start_at, end_at, duration_minutes, title, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, a.ConsultantID, a.ClientName, a.ClientPhone, a.Start, a.End,
		a.DurationMinutes, a.Title, a.Notes, a.Status).Scan(&id)
	return id, err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentRepository) Update(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET consultant_id = $2, client_name = $3, client_phone = $4, start_at = $5, end_at = $6,
			duration_minutes = $7, title = $8, notes = $9, updated_at = now()
		WHERE id = $1
	`, a.ID, a.ConsultantID, a.ClientName, a.ClientPhone, a.Start, a.End,
		a.DurationMinutes, a.Title, a.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Cancel is a soft delete; the record stays for the audit trail and simply
// stops participating in conflict checks and notifications.
func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListScheduledByConsultant feeds the conflict detector. Filtering on a
// single status equality keeps the query on one index; the scan and
// self-exclusion happen in code.
func (r *AppointmentRepository) ListScheduledByConsultant(ctx context.Context, consultantID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE consultant_id = $1 AND status = 'scheduled'
		ORDER BY start_at ASC
	`, consultantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

type ListFilter struct {
	ConsultantID string
	From         *time.Time
	To           *time.Time
}

func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ($1 = '' OR consultant_id::text = $1)
			AND ($2::timestamptz IS NULL OR start_at >= $2)
			AND ($3::timestamptz IS NULL OR start_at <= $3)
		ORDER BY start_at ASC
	`
	rows, err := r.pool.Query(ctx, query, f.ConsultantID, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
