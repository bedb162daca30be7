package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"

	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/internal/storage"
)

// ErrNotPayable means the appointment is past the point where a deposit
// makes sense (already confirmed, cancelled, or underway).
var ErrNotPayable = errors.New("appointment is not awaiting a deposit")

// Deposits creates Stripe PaymentIntents for booking deposits and applies
// the payment outcome to appointments when the webhook confirms it.
type Deposits struct {
	repo        *storage.PaymentRepository
	appts       AppointmentConfirmer
	logger      *slog.Logger
	secretKey   string
	amountCents int64
	currency    string
}

// AppointmentConfirmer applies the paid-deposit transition.
type AppointmentConfirmer interface {
	UpdateStatus(ctx context.Context, id int64, to model.AppointmentStatus) (model.Appointment, error)
	Get(ctx context.Context, id int64) (model.Appointment, error)
}

type Config struct {
	SecretKey   string
	AmountCents int64
	Currency    string
}

func NewDeposits(repo *storage.PaymentRepository, appts AppointmentConfirmer, logger *slog.Logger, cfg Config) *Deposits {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Deposits{
		repo:        repo,
		appts:       appts,
		logger:      logger,
		secretKey:   cfg.SecretKey,
		amountCents: cfg.AmountCents,
		currency:    cfg.Currency,
	}
}

// Enabled reports whether deposit collection is configured. When disabled,
// bookings stay pending until staff confirm them by hand.
func (d *Deposits) Enabled() bool {
	return d.secretKey != "" && d.amountCents > 0
}

// RequestDeposit creates the PaymentIntent for a pending appointment and
// records it. The returned client secret goes to the customer's payment
// form.
func (d *Deposits) RequestDeposit(ctx context.Context, appointmentID int64) (string, error) {
	if !d.Enabled() {
		return "", fmt.Errorf("deposits are not configured")
	}

	appt, err := d.appts.Get(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	if appt.Status != model.AppointmentPending {
		return "", fmt.Errorf("appointment %d is %s: %w", appointmentID, appt.Status, ErrNotPayable)
	}

	stripe.Key = d.secretKey
	pi, err := paymentintent.New(&stripe.PaymentIntentParams{
		Amount:   stripe.Int64(d.amountCents),
		Currency: stripe.String(d.currency),
		Params: stripe.Params{
			Metadata: map[string]string{
				"appointment_id": strconv.FormatInt(appointmentID, 10),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}

	if err := d.repo.InsertDeposit(ctx, storage.Deposit{
		AppointmentID:   appointmentID,
		PaymentIntentID: pi.ID,
		AmountCents:     d.amountCents,
		Currency:        d.currency,
		Status:          storage.DepositRequiresPayment,
	}); err != nil {
		return "", err
	}

	d.logger.Info("deposit requested",
		"appointment_id", appointmentID,
		"payment_intent", pi.ID,
		"amount_cents", d.amountCents)
	return pi.ClientSecret, nil
}

// ApplyIntentSucceeded marks the deposit paid and confirms the appointment.
// Called from the webhook after signature verification and replay dedup.
func (d *Deposits) ApplyIntentSucceeded(ctx context.Context, paymentIntentID string) error {
	tx, err := d.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dep, err := d.repo.FindDepositByIntent(ctx, tx, paymentIntentID)
	if err != nil {
		if storage.IsNotFound(err) {
			// an intent we did not create; nothing to apply
			d.logger.Warn("payment intent has no deposit on record", "payment_intent", paymentIntentID)
			return nil
		}
		return err
	}
	if dep.Status == storage.DepositPaid {
		return nil
	}
	if err := d.repo.SetDepositStatus(ctx, tx, dep.AppointmentID, storage.DepositPaid); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if _, err := d.appts.UpdateStatus(ctx, dep.AppointmentID, model.AppointmentConfirmed); err != nil {
		// Paid but not confirmable (e.g. already cancelled); staff reconcile.
		d.logger.Error("deposit paid but confirmation failed", "appointment_id", dep.AppointmentID, "err", err)
		return nil
	}

	d.logger.Info("deposit paid, appointment confirmed", "appointment_id", dep.AppointmentID)
	return nil
}

// ApplyIntentFailed marks the deposit failed; the appointment stays pending
// so the customer can retry payment.
func (d *Deposits) ApplyIntentFailed(ctx context.Context, paymentIntentID string) error {
	tx, err := d.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dep, err := d.repo.FindDepositByIntent(ctx, tx, paymentIntentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	}
	if dep.Status == storage.DepositPaid {
		return nil
	}
	if err := d.repo.SetDepositStatus(ctx, tx, dep.AppointmentID, storage.DepositFailed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
