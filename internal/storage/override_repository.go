package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/libs/db"
)

// OverrideRepository persists date-specific schedule exceptions. A NULL
// employee_id row applies to everyone (holiday closures); at most one
// override exists per (employee, date) and per global date.
type OverrideRepository struct {
	pool *db.Pool
}

func NewOverrideRepository(pool *db.Pool) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

const overrideColumns = `
	id, employee_id, date, start_minute, end_minute, available, COALESCE(reason, ''), created_at`

// Upsert inserts or replaces the override for the row's (employee, date)
// target, so re-submitting an exception updates it in place.
func (r *OverrideRepository) Upsert(ctx context.Context, ov *model.Override) (int64, error) {
	var id int64
	var err error
	if ov.EmployeeID != nil {
		err = r.pool.QueryRow(ctx, `
			INSERT INTO schedule_overrides (employee_id, date, start_minute, end_minute, available, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (employee_id, date) WHERE employee_id IS NOT NULL
			DO UPDATE SET start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute,
				available = EXCLUDED.available,
				reason = EXCLUDED.reason
			RETURNING id
		`, *ov.EmployeeID, ov.Date, ov.StartMinute, ov.EndMinute, ov.Available, ov.Reason).Scan(&id)
	} else {
		err = r.pool.QueryRow(ctx, `
			INSERT INTO schedule_overrides (employee_id, date, start_minute, end_minute, available, reason)
			VALUES (NULL, $1, $2, $3, $4, $5)
			ON CONFLICT (date) WHERE employee_id IS NULL
			DO UPDATE SET start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute,
				available = EXCLUDED.available,
				reason = EXCLUDED.reason
			RETURNING id
		`, ov.Date, ov.StartMinute, ov.EndMinute, ov.Available, ov.Reason).Scan(&id)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindEmployeeOverride returns the override targeting this employee on this
// date, or nil when none exists.
func (r *OverrideRepository) FindEmployeeOverride(ctx context.Context, employeeID int64, date time.Time) (*model.Override, error) {
	return r.findOne(ctx, `
		SELECT`+overrideColumns+`
		FROM schedule_overrides
		WHERE employee_id = $1 AND date = $2
	`, employeeID, date)
}

// FindGlobalOverride returns the all-employee override for this date, or nil.
func (r *OverrideRepository) FindGlobalOverride(ctx context.Context, date time.Time) (*model.Override, error) {
	return r.findOne(ctx, `
		SELECT`+overrideColumns+`
		FROM schedule_overrides
		WHERE employee_id IS NULL AND date = $1
	`, date)
}

func (r *OverrideRepository) ListByRange(ctx context.Context, from, to time.Time) ([]model.Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+overrideColumns+`
		FROM schedule_overrides
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, employee_id ASC NULLS FIRST
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		var ov model.Override
		if err := rows.Scan(
			&ov.ID,
			&ov.EmployeeID,
			&ov.Date,
			&ov.StartMinute,
			&ov.EndMinute,
			&ov.Available,
			&ov.Reason,
			&ov.CreatedAt,
		); err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return overrides, nil
}

func (r *OverrideRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedule_overrides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *OverrideRepository) findOne(ctx context.Context, query string, args ...any) (*model.Override, error) {
	var ov model.Override
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ov.ID,
		&ov.EmployeeID,
		&ov.Date,
		&ov.StartMinute,
		&ov.EndMinute,
		&ov.Available,
		&ov.Reason,
		&ov.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ov, nil
}
