package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/torim-app/torim/internal/model"
)

type ConsultantRepository struct {
	pool Querier
}

func NewConsultantRepository(pool Querier) *ConsultantRepository {
	return &ConsultantRepository{pool: pool}
}

const consultantColumns = `id, full_name, phone, specialties, is_active, created_at, updated_at`

func scanConsultant(row pgx.Row) (model.Consultant, error) {
	var c model.Consultant
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Specialties, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *ConsultantRepository) Create(ctx context.Context, c *model.Consultant) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO consultants (full_name, phone, specialties, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.FullName, c.Phone, c.Specialties, c.IsActive).Scan(&id)
	return id, err
}

func (r *ConsultantRepository) Get(ctx context.Context, id string) (model.Consultant, error) {
	return scanConsultant(r.pool.QueryRow(ctx, `
		SELECT `+consultantColumns+`
		FROM consultants
		WHERE id = $1
	`, id))
}

func (r *ConsultantRepository) List(ctx context.Context) ([]model.Consultant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+consultantColumns+`
		FROM consultants
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Consultant
	for rows.Next() {
		c, err := scanConsultant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConsultantRepository) Update(ctx context.Context, c *model.Consultant) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consultants
		SET full_name = $2, phone = $3, specialties = $4, is_active = $5, updated_at = now()
		WHERE id = $1
	`, c.ID, c.FullName, c.Phone, c.Specialties, c.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a consultant only when no appointment references them;
// otherwise the consultant is deactivated. Reports whether a hard delete
// happened.
func (r *ConsultantRepository) Delete(ctx context.Context, id string) (bool, error) {
	var referenced bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE consultant_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return false, err
	}

	if referenced {
		tag, err := r.pool.Exec(ctx, `
			UPDATE consultants SET is_active = FALSE, updated_at = now() WHERE id = $1
		`, id)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			return false, pgx.ErrNoRows
		}
		return false, nil
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM consultants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, pgx.ErrNoRows
	}
	return true, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
