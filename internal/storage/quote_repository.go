package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/libs/db"
)

type QuoteRepository struct {
	pool *db.Pool
}

func NewQuoteRepository(pool *db.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

const quoteColumns = `
	id, service_id, customer_name, customer_email, customer_phone,
	requested_date, price, status, created_at`

func (r *QuoteRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create runs inside the caller's transaction so the quote row and its
// outbox event commit together.
func (r *QuoteRepository) Create(ctx context.Context, tx pgx.Tx, q *model.Quote) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO quotes
			(service_id, customer_name, customer_email, customer_phone, requested_date, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, q.ServiceID, q.CustomerName, q.CustomerEmail, q.CustomerPhone, q.RequestedDate, q.Price, q.Status).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *QuoteRepository) Get(ctx context.Context, id int64) (model.Quote, error) {
	return scanQuote(r.pool.QueryRow(ctx, `
		SELECT`+quoteColumns+`
		FROM quotes
		WHERE id = $1
	`, id))
}

// GetForUpdate locks the quote row for the accept/decline transition, so two
// concurrent conversions cannot both see it pending.
func (r *QuoteRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Quote, error) {
	return scanQuote(tx.QueryRow(ctx, `
		SELECT`+quoteColumns+`
		FROM quotes
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *QuoteRepository) List(ctx context.Context, status model.QuoteStatus, limit int) ([]model.Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+quoteColumns+`
		FROM quotes
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return quotes, nil
}

func (r *QuoteRepository) SetStatus(ctx context.Context, tx pgx.Tx, id int64, status model.QuoteStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE quotes SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetPrice records staff pricing on a still-pending quote.
func (r *QuoteRepository) SetPrice(ctx context.Context, id int64, price string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotes SET price = $2 WHERE id = $1 AND status = 'pending'
	`, id, price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanQuote(row pgx.Row) (model.Quote, error) {
	var q model.Quote
	err := row.Scan(
		&q.ID,
		&q.ServiceID,
		&q.CustomerName,
		&q.CustomerEmail,
		&q.CustomerPhone,
		&q.RequestedDate,
		&q.Price,
		&q.Status,
		&q.CreatedAt,
	)
	if err != nil {
		return model.Quote{}, err
	}
	return q, nil
}
