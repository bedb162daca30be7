package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/j-arredondo/cleansched/internal/payments"
	"github.com/j-arredondo/cleansched/internal/storage"
)

// StripeWebhookHandler receives payment outcome events from Stripe. No JWT
// auth; signature verification is the auth, so the path can be public.
type StripeWebhookHandler struct {
	payments  *storage.PaymentRepository
	deposits  *payments.Deposits
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewStripeWebhookHandler(repo *storage.PaymentRepository, deposits *payments.Deposits, secret string, tolerance time.Duration, logger *slog.Logger) *StripeWebhookHandler {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &StripeWebhookHandler{
		payments:  repo,
		deposits:  deposits,
		secret:    secret,
		tolerance: tolerance,
		logger:    logger,
	}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("stripe event received",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var intent stripe.PaymentIntent
	switch evtType {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
	default:
		// Events we did not subscribe to still get a 200 so Stripe stops
		// retrying them.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	appointmentID, _ := strconv.ParseInt(intent.Metadata["appointment_id"], 10, 64)

	// Idempotency: ignore replayed Stripe events.
	if err := h.payments.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		ProviderEventID: evt.ID,
		EventType:       evtType,
		AppointmentID:   appointmentID,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("stripe event duplicate ignored", "provider_event_id", evt.ID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	// The dedup row commits only after the event applied cleanly; a failed
	// apply rolls it back so Stripe's retry gets another attempt.
	switch evtType {
	case "payment_intent.succeeded":
		err = h.deposits.ApplyIntentSucceeded(ctx, intent.ID)
	case "payment_intent.payment_failed":
		err = h.deposits.ApplyIntentFailed(ctx, intent.ID)
	}
	if err != nil {
		h.logger.Error("stripe event apply failed", "provider_event_id", evt.ID, "event_type", evtType, "err", err)
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
}
