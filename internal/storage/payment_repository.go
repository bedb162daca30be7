package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/libs/db"
)

var ErrDuplicateProviderEvent = errors.New("provider event already processed")

type ProviderEvent struct {
	ProviderEventID string
	EventType       string
	AppointmentID   int64
}

type Deposit struct {
	AppointmentID   int64
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	DepositRequiresPayment = "requires_payment"
	DepositPaid            = "paid"
	DepositFailed          = "failed"
)

type PaymentRepository struct {
	pool *db.Pool
}

func NewPaymentRepository(pool *db.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertProviderEvent records a webhook delivery; a replay hits the primary
// key and returns ErrDuplicateProviderEvent.
func (r *PaymentRepository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var appointmentID *int64
	if evt.AppointmentID != 0 {
		appointmentID = &evt.AppointmentID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_provider_events (provider_event_id, event_type, appointment_id)
		VALUES ($1, $2, $3)
	`, evt.ProviderEventID, evt.EventType, appointmentID)
	if IsDuplicate(err) {
		return ErrDuplicateProviderEvent
	}
	return err
}

func (r *PaymentRepository) InsertDeposit(ctx context.Context, dep Deposit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_deposits (appointment_id, payment_intent_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5)
	`, dep.AppointmentID, dep.PaymentIntentID, dep.AmountCents, dep.Currency, dep.Status)
	return err
}

func (r *PaymentRepository) GetDeposit(ctx context.Context, appointmentID int64) (Deposit, error) {
	var dep Deposit
	err := r.pool.QueryRow(ctx, `
		SELECT appointment_id, payment_intent_id, amount_cents, currency, status, created_at, updated_at
		FROM appointment_deposits
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&dep.AppointmentID,
		&dep.PaymentIntentID,
		&dep.AmountCents,
		&dep.Currency,
		&dep.Status,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)
	if err != nil {
		return Deposit{}, err
	}
	return dep, nil
}

// FindDepositByIntent maps a Stripe PaymentIntent id back to the
// appointment it funds.
func (r *PaymentRepository) FindDepositByIntent(ctx context.Context, tx pgx.Tx, paymentIntentID string) (Deposit, error) {
	var dep Deposit
	err := tx.QueryRow(ctx, `
		SELECT appointment_id, payment_intent_id, amount_cents, currency, status, created_at, updated_at
		FROM appointment_deposits
		WHERE payment_intent_id = $1
		FOR UPDATE
	`, paymentIntentID).Scan(
		&dep.AppointmentID,
		&dep.PaymentIntentID,
		&dep.AmountCents,
		&dep.Currency,
		&dep.Status,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)
	if err != nil {
		return Deposit{}, err
	}
	return dep, nil
}

func (r *PaymentRepository) SetDepositStatus(ctx context.Context, tx pgx.Tx, appointmentID int64, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointment_deposits
		SET status = $2, updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
