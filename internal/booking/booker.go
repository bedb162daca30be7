package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/internal/outbox"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
)

var (
	// ErrSlotContended means another request holds the Redis lease for the
	// same employees and date right now.
	ErrSlotContended = errors.New("slot is being booked by another request")
	// ErrInvalidTransition means the appointment's current status does not
	// permit the requested one.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrQuoteNotPending means the quote was already accepted or declined.
	ErrQuoteNotPending = errors.New("quote is not pending")
	// ErrNotReschedulable means only pending or confirmed appointments move.
	ErrNotReschedulable = errors.New("appointment cannot be rescheduled")
)

type ServiceStore interface {
	GetActive(ctx context.Context, id int64) (model.Service, error)
	Get(ctx context.Context, id int64) (model.Service, error)
}

type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment, win schedule.Window) (int64, error)
	Get(ctx context.Context, id int64) (model.Appointment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Appointment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status model.AppointmentStatus) error
	Cancel(ctx context.Context, tx pgx.Tx, id int64, reason string) (time.Time, error)
	Reschedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment, win schedule.Window) error
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key string, appointmentID int64, statusCode int, response []byte) error
}

type QuoteStore interface {
	Create(ctx context.Context, tx pgx.Tx, q *model.Quote) (int64, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Quote, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id int64, status model.QuoteStatus) error
}

type OutboxStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Booker runs the booking workflows: the availability check, the Redis
// lease, the transactional insert with its outbox event, and the lifecycle
// transitions afterwards.
type Booker struct {
	services ServiceStore
	appts    AppointmentStore
	quotes   QuoteStore
	outbox   OutboxStore
	resolver *schedule.Resolver
	engine   *schedule.Engine
	lock     *SlotLock
	logger   *slog.Logger
}

func NewBooker(
	services ServiceStore,
	appts AppointmentStore,
	quotes QuoteStore,
	outboxRepo OutboxStore,
	resolver *schedule.Resolver,
	engine *schedule.Engine,
	lock *SlotLock,
	logger *slog.Logger,
) *Booker {
	return &Booker{
		services: services,
		appts:    appts,
		quotes:   quotes,
		outbox:   outboxRepo,
		resolver: resolver,
		engine:   engine,
		lock:     lock,
		logger:   logger,
	}
}

type CreateRequest struct {
	ServiceID      int64
	QuoteID        *int64
	Team           schedule.TeamRequest
	Date           time.Time
	Start          time.Time
	Price          string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	IdempotencyKey string
}

// CreateResponse is the booking payload returned to clients and replayed for
// repeated idempotency keys.
type CreateResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type CreateResult struct {
	Appointment model.Appointment
	Decision    schedule.Result
	Replayed    bool
	StatusCode  int
	Payload     []byte
}

// Booked reports whether the appointment was created (or replayed).
func (r CreateResult) Booked() bool {
	return r.Replayed || r.Appointment.ID != 0
}

// Create books an appointment. A non-available Decision with nil error means
// the slot was rejected; the caller renders the reason. The sequence is:
// claim the idempotency key, resolve the team, take the per-employee Redis
// lease, re-check under the lease, then insert in the same transaction
// together with the outbox event.
// A concurrent insert that slips past all of that is caught by the exclusion
// constraint and surfaces here as a conflict decision, never a double
// booking.
func (b *Booker) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	svc, err := b.services.GetActive(ctx, req.ServiceID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load service %d: %w", req.ServiceID, err)
	}

	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency replay comes before the availability check: a retried
	// request must see its own earlier booking, not a conflict with it.
	if req.IdempotencyKey != "" {
		rec, done, err := b.appts.LockIdempotencyKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return CreateResult{}, err
		}
		if done {
			if err := tx.Commit(ctx); err != nil {
				return CreateResult{}, err
			}
			return CreateResult{
				Replayed:   true,
				StatusCode: rec.StatusCode,
				Payload:    rec.ResponsePayload,
			}, nil
		}
	}

	team, decision, err := b.resolver.ResolveTeam(ctx, svc, req.Team, req.Date, req.Start)
	if err != nil {
		return CreateResult{}, err
	}
	if !decision.Available() {
		return CreateResult{Decision: decision}, nil
	}

	ids := make([]int64, 0, len(team.Members))
	for _, m := range team.Members {
		ids = append(ids, m.EmployeeID)
	}

	release, acquired, err := b.lock.Acquire(ctx, ids, req.Date)
	if err != nil {
		return CreateResult{}, fmt.Errorf("acquire slot lease: %w", err)
	}
	if !acquired {
		return CreateResult{}, ErrSlotContended
	}
	defer release()

	// Someone may have booked between the resolve and the lease.
	decision, err = b.engine.CheckSlot(ctx, svc, ids, req.Date, req.Start, 0)
	if err != nil {
		return CreateResult{}, err
	}
	if !decision.Available() {
		return CreateResult{Decision: decision}, nil
	}

	appt := model.Appointment{
		ServiceID:     svc.ID,
		QuoteID:       req.QuoteID,
		Assignments:   team.Members,
		Date:          req.Date,
		StartTime:     decision.Window.ServiceStart,
		EndTime:       decision.Window.ServiceEnd,
		Status:        model.AppointmentPending,
		Price:         req.Price,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	}

	if req.QuoteID != nil {
		quote, err := b.quotes.GetForUpdate(ctx, tx, *req.QuoteID)
		if err != nil {
			return CreateResult{}, fmt.Errorf("load quote %d: %w", *req.QuoteID, err)
		}
		if quote.Status != model.QuotePending {
			return CreateResult{}, fmt.Errorf("quote %d: %w", *req.QuoteID, ErrQuoteNotPending)
		}
		if err := b.quotes.SetStatus(ctx, tx, *req.QuoteID, model.QuoteAccepted); err != nil {
			return CreateResult{}, err
		}
		if appt.Price == "" {
			appt.Price = quote.Price
		}
	}

	id, err := b.appts.Create(ctx, tx, &appt, decision.Window)
	if err != nil {
		if storage.IsConflict(err) {
			// lost the constraint race; report it like any other conflict
			decision.Outcome = schedule.OutcomeConflict
			return CreateResult{Decision: decision}, nil
		}
		return CreateResult{}, err
	}
	appt.ID = id

	if err := b.emitAppointmentEvent(ctx, tx, outbox.TopicAppointmentBooked, appt); err != nil {
		return CreateResult{}, err
	}

	respBody, err := json.Marshal(CreateResponse{
		AppointmentID: id,
		Status:        string(appt.Status),
		StartTime:     appt.StartTime.Format(time.RFC3339),
		EndTime:       appt.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		return CreateResult{}, err
	}
	if req.IdempotencyKey != "" {
		if err := b.appts.FinalizeIdempotency(ctx, tx, req.IdempotencyKey, id, http.StatusCreated, respBody); err != nil {
			return CreateResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, err
	}

	b.logger.Info("appointment booked",
		"appointment_id", id,
		"service_id", svc.ID,
		"employees", ids,
		"start", appt.StartTime)

	return CreateResult{Appointment: appt, Decision: decision, StatusCode: http.StatusCreated, Payload: respBody}, nil
}

// Cancel moves the appointment to cancelled and frees its occupied windows.
func (b *Booker) Cancel(ctx context.Context, id int64, reason string) (model.Appointment, error) {
	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := b.appts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, model.AppointmentCancelled) {
		return model.Appointment{}, fmt.Errorf("%s to cancelled: %w", appt.Status, ErrInvalidTransition)
	}

	cancelledAt, err := b.appts.Cancel(ctx, tx, id, reason)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.AppointmentCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &cancelledAt

	if err := b.emitAppointmentEvent(ctx, tx, outbox.TopicAppointmentCancelled, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	b.logger.Info("appointment cancelled", "appointment_id", id, "reason", reason)
	return appt, nil
}

// Get returns the appointment with its assignments.
func (b *Booker) Get(ctx context.Context, id int64) (model.Appointment, error) {
	return b.appts.Get(ctx, id)
}

// UpdateStatus applies one lifecycle transition.
func (b *Booker) UpdateStatus(ctx context.Context, id int64, to model.AppointmentStatus) (model.Appointment, error) {
	if to == model.AppointmentCancelled {
		return b.Cancel(ctx, id, "")
	}

	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := b.appts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, to) {
		return model.Appointment{}, fmt.Errorf("%s to %s: %w", appt.Status, to, ErrInvalidTransition)
	}
	if err := b.appts.UpdateStatus(ctx, tx, id, to); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = to

	if to == model.AppointmentConfirmed {
		if err := b.emitAppointmentEvent(ctx, tx, outbox.TopicAppointmentConfirmed, appt); err != nil {
			return model.Appointment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	b.logger.Info("appointment status changed", "appointment_id", id, "status", to)
	return appt, nil
}

// Reschedule moves a pending or confirmed appointment to a new slot, keeping
// its team. The appointment's own occupied window is excluded from the
// availability check so it never conflicts with itself.
func (b *Booker) Reschedule(ctx context.Context, id int64, date, start time.Time) (model.Appointment, schedule.Result, error) {
	appt, err := b.appts.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	if appt.Status != model.AppointmentPending && appt.Status != model.AppointmentConfirmed {
		return model.Appointment{}, schedule.Result{}, fmt.Errorf("status %s: %w", appt.Status, ErrNotReschedulable)
	}

	svc, err := b.services.Get(ctx, appt.ServiceID)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}

	ids := appt.EmployeeIDs()
	release, acquired, err := b.lock.Acquire(ctx, ids, date)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	if !acquired {
		return model.Appointment{}, schedule.Result{}, ErrSlotContended
	}
	defer release()

	decision, err := b.engine.CheckSlot(ctx, svc, ids, date, start, id)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	if !decision.Available() {
		return model.Appointment{}, decision, nil
	}

	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := b.appts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	if locked.Status != appt.Status {
		return model.Appointment{}, schedule.Result{}, fmt.Errorf("status %s: %w", locked.Status, ErrNotReschedulable)
	}

	locked.Date = date
	locked.StartTime = decision.Window.ServiceStart
	locked.EndTime = decision.Window.ServiceEnd
	if err := b.appts.Reschedule(ctx, tx, &locked, decision.Window); err != nil {
		if storage.IsConflict(err) {
			decision.Outcome = schedule.OutcomeConflict
			return model.Appointment{}, decision, nil
		}
		return model.Appointment{}, schedule.Result{}, err
	}

	if err := b.emitAppointmentEvent(ctx, tx, outbox.TopicAppointmentRescheduled, locked); err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, schedule.Result{}, err
	}

	b.logger.Info("appointment rescheduled", "appointment_id", id, "start", locked.StartTime)
	return locked, decision, nil
}

// RequestQuote records a customer quote request and emits its event in the
// same transaction.
func (b *Booker) RequestQuote(ctx context.Context, q model.Quote) (model.Quote, error) {
	if _, err := b.services.GetActive(ctx, q.ServiceID); err != nil {
		return model.Quote{}, fmt.Errorf("load service %d: %w", q.ServiceID, err)
	}
	q.Status = model.QuotePending

	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return model.Quote{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := b.quotes.Create(ctx, tx, &q)
	if err != nil {
		return model.Quote{}, err
	}
	q.ID = id

	payload, err := json.Marshal(map[string]any{
		"quote_id":       id,
		"service_id":     q.ServiceID,
		"requested_date": q.RequestedDate.Format("2006-01-02"),
		"customer_email": q.CustomerEmail,
	})
	if err != nil {
		return model.Quote{}, err
	}
	if err := b.outbox.Insert(ctx, tx, outbox.Event{
		Topic:     outbox.TopicQuoteRequested,
		Key:       fmt.Sprintf("quote-%d", id),
		EventType: outbox.TopicQuoteRequested,
		Payload:   payload,
	}); err != nil {
		return model.Quote{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Quote{}, err
	}

	b.logger.Info("quote requested", "quote_id", id, "service_id", q.ServiceID)
	return q, nil
}

// DeclineQuote marks a pending quote declined.
func (b *Booker) DeclineQuote(ctx context.Context, id int64) error {
	tx, err := b.appts.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	quote, err := b.quotes.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if quote.Status != model.QuotePending {
		return fmt.Errorf("quote %d: %w", id, ErrQuoteNotPending)
	}
	if err := b.quotes.SetStatus(ctx, tx, id, model.QuoteDeclined); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (b *Booker) emitAppointmentEvent(ctx context.Context, tx pgx.Tx, topic string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"service_id":     appt.ServiceID,
		"employee_ids":   appt.EmployeeIDs(),
		"status":         appt.Status,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"customer_email": appt.CustomerEmail,
	})
	if err != nil {
		return err
	}
	return b.outbox.Insert(ctx, tx, outbox.Event{
		Topic:     topic,
		Key:       fmt.Sprintf("appointment-%d", appt.ID),
		EventType: topic,
		Payload:   payload,
	})
}
