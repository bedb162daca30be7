package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/j-arredondo/cleansched/internal/booking"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/internal/payments"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
)

type BookingHandler struct {
	booker   *booking.Booker
	appts    *storage.AppointmentRepository
	deposits *payments.Deposits
	loc      *time.Location
	logger   *slog.Logger
}

func NewBookingHandler(
	booker *booking.Booker,
	appts *storage.AppointmentRepository,
	deposits *payments.Deposits,
	loc *time.Location,
	logger *slog.Logger,
) *BookingHandler {
	return &BookingHandler{
		booker:   booker,
		appts:    appts,
		deposits: deposits,
		loc:      loc,
		logger:   logger,
	}
}

type bookRequest struct {
	ServiceID     int64   `json:"service_id"`
	QuoteID       *int64  `json:"quote_id"`
	EmployeeIDs   []int64 `json:"employee_ids"`
	Date          string  `json:"date"`
	StartTime     string  `json:"start_time"`
	Price         string  `json:"price"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	CustomerPhone string  `json:"customer_phone"`
}

// Book creates an appointment. Repeated requests carrying the same
// Idempotency-Key header replay the first response instead of booking twice.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ServiceID == 0 {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(strings.ToLower(req.CustomerEmail))
	if req.CustomerName == "" || req.CustomerEmail == "" {
		http.Error(w, "customer_name and customer_email required", http.StatusBadRequest)
		return
	}
	date, ok := parseDate(req.Date, h.loc)
	if !ok {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	start, ok := parseStart(date, req.StartTime)
	if !ok {
		http.Error(w, "invalid start_time (want HH:MM)", http.StatusBadRequest)
		return
	}

	team := schedule.AutoAssignTeam()
	if len(req.EmployeeIDs) > 0 {
		team = schedule.SpecificTeam(req.EmployeeIDs...)
	}

	res, err := h.booker.Create(r.Context(), booking.CreateRequest{
		ServiceID:      req.ServiceID,
		QuoteID:        req.QuoteID,
		Team:           team,
		Date:           date,
		Start:          start,
		Price:          strings.TrimSpace(req.Price),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	if res.Replayed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.StatusCode)
		w.Write(res.Payload)
		return
	}
	if !res.Booked() {
		writeJSON(w, decisionStatus(res.Decision), renderDecision(res.Decision))
		return
	}

	writeJSON(w, http.StatusCreated, booking.CreateResponse{
		AppointmentID: res.Appointment.ID,
		Status:        string(res.Appointment.Status),
		StartTime:     res.Appointment.StartTime.Format(time.RFC3339),
		EndTime:       res.Appointment.EndTime.Format(time.RFC3339),
	})
}

// Deposit creates a payment intent for an appointment's booking deposit and
// returns the client secret the frontend needs to collect payment.
func (h *BookingHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deposits == nil || !h.deposits.Enabled() {
		http.Error(w, "deposits not enabled", http.StatusNotImplemented)
		return
	}

	var req struct {
		AppointmentID int64 `json:"appointment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppointmentID == 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	secret, err := h.deposits.RequestDeposit(r.Context(), req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, payments.ErrNotPayable) {
			http.Error(w, "appointment is not awaiting a deposit", http.StatusConflict)
			return
		}
		h.logger.Error("request deposit failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "payment provider error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

type quoteRequest struct {
	ServiceID     int64  `json:"service_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	RequestedDate string `json:"requested_date"`
}

// RequestQuote records a custom-pricing request for staff follow-up.
func (h *BookingHandler) RequestQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(strings.ToLower(req.CustomerEmail))
	if req.ServiceID == 0 || req.CustomerName == "" || req.CustomerEmail == "" {
		http.Error(w, "service_id, customer_name and customer_email required", http.StatusBadRequest)
		return
	}
	var requested time.Time
	if req.RequestedDate != "" {
		var ok bool
		requested, ok = parseDate(req.RequestedDate, h.loc)
		if !ok {
			http.Error(w, "invalid requested_date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}

	q, err := h.booker.RequestQuote(r.Context(), model.Quote{
		ServiceID:     req.ServiceID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		RequestedDate: requested,
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("request quote failed", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"quote_id": q.ID,
		"status":   string(q.Status),
	})
}

// List returns appointments filtered by range, employee and status.
// Staff-only; mounted behind auth middleware.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var f storage.ListFilter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, ok := parseDate(v, h.loc)
		if !ok {
			http.Error(w, "invalid from (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		f.From = d
	}
	if v := q.Get("to"); v != "" {
		d, ok := parseDate(v, h.loc)
		if !ok {
			http.Error(w, "invalid to (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		f.To = d.Add(24 * time.Hour)
	}
	f.EmployeeID = queryInt64(r, "employee_id")
	if v := q.Get("status"); v != "" {
		st, ok := appointmentStatus(v)
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		f.Status = st
	}
	f.Limit = int(queryInt64(r, "limit"))

	appts, err := h.appts.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		items = append(items, renderAppointment(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// Get returns one appointment by id (?id=).
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := queryInt64(r, "id")
	if id == 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, renderAppointment(appt))
}

// Cancel cancels an appointment and frees its employees' occupied windows.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID     int64  `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.Cancel(r.Context(), req.ID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderAppointment(appt))
}

// UpdateStatus moves an appointment through its lifecycle.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	to, ok := appointmentStatus(req.Status)
	if !ok {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.UpdateStatus(r.Context(), req.ID, to)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderAppointment(appt))
}

// Reschedule moves a pending or confirmed appointment to a new slot, running
// the full availability check against the same team minus the appointment's
// own occupied window.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID        int64  `json:"id"`
		Date      string `json:"date"`
		StartTime string `json:"start_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	date, ok := parseDate(req.Date, h.loc)
	if !ok {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	start, ok := parseStart(date, req.StartTime)
	if !ok {
		http.Error(w, "invalid start_time (want HH:MM)", http.StatusBadRequest)
		return
	}

	appt, decision, err := h.booker.Reschedule(r.Context(), req.ID, date, start)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	if !decision.Available() {
		writeJSON(w, decisionStatus(decision), renderDecision(decision))
		return
	}
	writeJSON(w, http.StatusOK, renderAppointment(appt))
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case storage.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotContended):
		http.Error(w, "slot is being booked by another request", http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrNotReschedulable),
		errors.Is(err, booking.ErrQuoteNotPending):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, schedule.ErrNotEligible),
		errors.Is(err, schedule.ErrNoFeasibleTeam):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func appointmentStatus(s string) (model.AppointmentStatus, bool) {
	switch st := model.AppointmentStatus(s); st {
	case model.AppointmentPending, model.AppointmentConfirmed, model.AppointmentInProgress,
		model.AppointmentCompleted, model.AppointmentCancelled, model.AppointmentNoShow:
		return st, true
	default:
		return "", false
	}
}

func renderAppointment(a model.Appointment) map[string]any {
	item := map[string]any{
		"id":             a.ID,
		"service_id":     a.ServiceID,
		"employee_ids":   a.EmployeeIDs(),
		"date":           a.Date.Format("2006-01-02"),
		"start_time":     a.StartTime.Format(time.RFC3339),
		"end_time":       a.EndTime.Format(time.RFC3339),
		"status":         string(a.Status),
		"price":          a.Price,
		"customer_name":  a.CustomerName,
		"customer_email": a.CustomerEmail,
		"customer_phone": a.CustomerPhone,
	}
	if a.QuoteID != nil {
		item["quote_id"] = *a.QuoteID
	}
	if a.CancelReason != "" {
		item["cancel_reason"] = a.CancelReason
	}
	return item
}
