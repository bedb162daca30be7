package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/libs/db"
)

type ServiceRepository struct {
	pool *db.Pool
}

func NewServiceRepository(pool *db.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

const serviceColumns = `
	id, name, duration_mins, price, capacity,
	buffer_before_mins, buffer_after_mins,
	min_advance_hours, max_advance_days, status, created_at`

func (r *ServiceRepository) Create(ctx context.Context, svc *model.Service) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services
			(name, duration_mins, price, capacity, buffer_before_mins, buffer_after_mins,
			 min_advance_hours, max_advance_days, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, svc.Name, svc.DurationMins, svc.Price, svc.Capacity, svc.BufferBeforeMins, svc.BufferAfterMins,
		svc.MinAdvanceHours, svc.MaxAdvanceDays, svc.Status).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *ServiceRepository) Get(ctx context.Context, id int64) (model.Service, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT`+serviceColumns+`
		FROM services
		WHERE id = $1
	`, id).Scan(
		&svc.ID,
		&svc.Name,
		&svc.DurationMins,
		&svc.Price,
		&svc.Capacity,
		&svc.BufferBeforeMins,
		&svc.BufferAfterMins,
		&svc.MinAdvanceHours,
		&svc.MaxAdvanceDays,
		&svc.Status,
		&svc.CreatedAt,
	)
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// GetActive is Get restricted to bookable services.
func (r *ServiceRepository) GetActive(ctx context.Context, id int64) (model.Service, error) {
	svc, err := r.Get(ctx, id)
	if err != nil {
		return model.Service{}, err
	}
	if svc.Status != model.ServiceActive {
		return model.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (r *ServiceRepository) List(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT` + serviceColumns + ` FROM services ORDER BY id ASC`
	if activeOnly {
		query = `SELECT` + serviceColumns + ` FROM services WHERE status = 'active' ORDER BY id ASC`
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(
			&svc.ID,
			&svc.Name,
			&svc.DurationMins,
			&svc.Price,
			&svc.Capacity,
			&svc.BufferBeforeMins,
			&svc.BufferAfterMins,
			&svc.MinAdvanceHours,
			&svc.MaxAdvanceDays,
			&svc.Status,
			&svc.CreatedAt,
		); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

func (r *ServiceRepository) Update(ctx context.Context, svc *model.Service) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $2,
			duration_mins = $3,
			price = $4,
			capacity = $5,
			buffer_before_mins = $6,
			buffer_after_mins = $7,
			min_advance_hours = $8,
			max_advance_days = $9,
			status = $10
		WHERE id = $1
	`, svc.ID, svc.Name, svc.DurationMins, svc.Price, svc.Capacity, svc.BufferBeforeMins,
		svc.BufferAfterMins, svc.MinAdvanceHours, svc.MaxAdvanceDays, svc.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ServiceRepository) SetStatus(ctx context.Context, id int64, status model.ServiceStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
