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
	"github.com/j-arredondo/cleansched/internal/storage"
)

// AdminHandler is the staff-facing CRUD surface for the data that feeds the
// availability engine: services, employees, weekly hours, overrides, quotes.
// Input is validated here so the core only ever sees well-typed records.
type AdminHandler struct {
	services  *storage.ServiceRepository
	employees *storage.EmployeeRepository
	overrides *storage.OverrideRepository
	quotes    *storage.QuoteRepository
	booker    *booking.Booker
	loc       *time.Location
	logger    *slog.Logger
}

func NewAdminHandler(
	services *storage.ServiceRepository,
	employees *storage.EmployeeRepository,
	overrides *storage.OverrideRepository,
	quotes *storage.QuoteRepository,
	booker *booking.Booker,
	loc *time.Location,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		services:  services,
		employees: employees,
		overrides: overrides,
		quotes:    quotes,
		booker:    booker,
		loc:       loc,
		logger:    logger,
	}
}

type servicePayload struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	DurationMins     int    `json:"duration_mins"`
	Price            string `json:"price"`
	Capacity         int    `json:"capacity"`
	BufferBeforeMins int    `json:"buffer_before_mins"`
	BufferAfterMins  int    `json:"buffer_after_mins"`
	MinAdvanceHours  int    `json:"min_advance_hours"`
	MaxAdvanceDays   int    `json:"max_advance_days"`
	Status           string `json:"status"`
}

func (p servicePayload) validate() string {
	if strings.TrimSpace(p.Name) == "" {
		return "name required"
	}
	if p.DurationMins <= 0 {
		return "duration_mins must be positive"
	}
	if p.BufferBeforeMins < 0 || p.BufferAfterMins < 0 {
		return "buffers must not be negative"
	}
	if p.MinAdvanceHours < 0 || p.MaxAdvanceDays < 0 {
		return "advance notice bounds must not be negative"
	}
	return ""
}

func (p servicePayload) toModel() model.Service {
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	return model.Service{
		ID:               p.ID,
		Name:             strings.TrimSpace(p.Name),
		DurationMins:     p.DurationMins,
		Price:            strings.TrimSpace(p.Price),
		Capacity:         capacity,
		BufferBeforeMins: p.BufferBeforeMins,
		BufferAfterMins:  p.BufferAfterMins,
		MinAdvanceHours:  p.MinAdvanceHours,
		MaxAdvanceDays:   p.MaxAdvanceDays,
		Status:           model.ServiceActive,
	}
}

// Services handles GET (list, including inactive), POST (create) and
// PUT (update) on the service catalog.
func (h *AdminHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.services.List(r.Context(), false)
		if err != nil {
			h.logger.Error("admin list services failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		items := make([]servicePayload, 0, len(services))
		for _, svc := range services {
			items = append(items, servicePayload{
				ID:               svc.ID,
				Name:             svc.Name,
				DurationMins:     svc.DurationMins,
				Price:            svc.Price,
				Capacity:         svc.Capacity,
				BufferBeforeMins: svc.BufferBeforeMins,
				BufferAfterMins:  svc.BufferAfterMins,
				MinAdvanceHours:  svc.MinAdvanceHours,
				MaxAdvanceDays:   svc.MaxAdvanceDays,
				Status:           string(svc.Status),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": items})

	case http.MethodPost:
		var p servicePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if msg := p.validate(); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		svc := p.toModel()
		id, err := h.services.Create(r.Context(), &svc)
		if err != nil {
			h.logger.Error("create service failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})

	case http.MethodPut:
		var p servicePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if p.ID == 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if msg := p.validate(); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		svc := p.toModel()
		if p.Status == string(model.ServiceInactive) {
			svc.Status = model.ServiceInactive
		}
		if err := h.services.Update(r.Context(), &svc); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "service not found", http.StatusNotFound)
				return
			}
			h.logger.Error("update service failed", "id", p.ID, "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": p.ID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ServiceStatus activates or deactivates a service without touching the rest
// of its record.
func (h *AdminHandler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
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
	status := model.ServiceStatus(req.Status)
	if status != model.ServiceActive && status != model.ServiceInactive {
		http.Error(w, "status must be active or inactive", http.StatusBadRequest)
		return
	}
	if err := h.services.SetStatus(r.Context(), req.ID, status); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dayHoursPayload struct {
	Weekday     int  `json:"weekday"` // 0 = Sunday
	Enabled     bool `json:"enabled"`
	StartMinute int  `json:"start_minute"`
	EndMinute   int  `json:"end_minute"`
}

type employeePayload struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	ServiceIDs []int64           `json:"service_ids"`
	Hours      []dayHoursPayload `json:"working_hours"`
}

func renderEmployee(emp model.Employee) employeePayload {
	p := employeePayload{
		ID:         emp.ID,
		Name:       emp.Name,
		Status:     string(emp.Status),
		ServiceIDs: emp.ServiceIDs,
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d, ok := emp.Hours[wd]
		if !ok {
			continue
		}
		p.Hours = append(p.Hours, dayHoursPayload{
			Weekday:     int(wd),
			Enabled:     d.Enabled,
			StartMinute: d.StartMinute,
			EndMinute:   d.EndMinute,
		})
	}
	return p
}

func parseWeeklyHours(days []dayHoursPayload) (model.WeeklyHours, string) {
	hours := make(model.WeeklyHours, len(days))
	for _, d := range days {
		if d.Weekday < 0 || d.Weekday > 6 {
			return nil, "weekday must be 0..6"
		}
		if d.Enabled {
			if d.StartMinute < 0 || d.EndMinute > 1440 || d.StartMinute >= d.EndMinute {
				return nil, "working hours need 0 <= start_minute < end_minute <= 1440"
			}
		}
		hours[time.Weekday(d.Weekday)] = model.DayHours{
			Enabled:     d.Enabled,
			StartMinute: d.StartMinute,
			EndMinute:   d.EndMinute,
		}
	}
	return hours, ""
}

// Employees handles GET (list), POST (create) and PUT (update) on the
// employee roster, including weekly hours and service eligibility links.
func (h *AdminHandler) Employees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		employees, err := h.employees.List(r.Context())
		if err != nil {
			h.logger.Error("admin list employees failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		items := make([]employeePayload, 0, len(employees))
		for _, emp := range employees {
			items = append(items, renderEmployee(emp))
		}
		writeJSON(w, http.StatusOK, map[string]any{"employees": items})

	case http.MethodPost, http.MethodPut:
		var p employeePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(p.Name) == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		hours, msg := parseWeeklyHours(p.Hours)
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		emp := model.Employee{
			ID:         p.ID,
			Name:       strings.TrimSpace(p.Name),
			Status:     model.EmployeeActive,
			Hours:      hours,
			ServiceIDs: p.ServiceIDs,
		}
		if p.Status == string(model.EmployeeInactive) {
			emp.Status = model.EmployeeInactive
		}

		if r.Method == http.MethodPost {
			id, err := h.employees.Create(r.Context(), &emp)
			if err != nil {
				h.logger.Error("create employee failed", "err", err)
				http.Error(w, "db error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"id": id})
			return
		}

		if p.ID == 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := h.employees.Update(r.Context(), &emp); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "employee not found", http.StatusNotFound)
				return
			}
			h.logger.Error("update employee failed", "id", p.ID, "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": p.ID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// EmployeeStatus marks an employee active or inactive. Inactive employees
// drop out of every availability answer immediately.
func (h *AdminHandler) EmployeeStatus(w http.ResponseWriter, r *http.Request) {
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
	status := model.EmployeeStatus(req.Status)
	if status != model.EmployeeActive && status != model.EmployeeInactive {
		http.Error(w, "status must be active or inactive", http.StatusBadRequest)
		return
	}
	if err := h.employees.SetStatus(r.Context(), req.ID, status); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "employee not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WorkingHours replaces an employee's weekly schedule wholesale.
func (h *AdminHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		EmployeeID int64             `json:"employee_id"`
		Hours      []dayHoursPayload `json:"working_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EmployeeID == 0 {
		http.Error(w, "employee_id required", http.StatusBadRequest)
		return
	}
	hours, msg := parseWeeklyHours(req.Hours)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if err := h.employees.SetWorkingHours(r.Context(), req.EmployeeID, hours); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "employee not found", http.StatusNotFound)
			return
		}
		h.logger.Error("set working hours failed", "employee_id", req.EmployeeID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overridePayload struct {
	EmployeeID  *int64 `json:"employee_id"` // null = business-wide
	Date        string `json:"date"`
	Available   bool   `json:"available"`
	StartMinute *int   `json:"start_minute"`
	EndMinute   *int   `json:"end_minute"`
	Reason      string `json:"reason"`
}

// Overrides handles GET (list by range), POST (upsert) and DELETE on
// per-date schedule exceptions, both per-employee and business-wide.
func (h *AdminHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		from, ok := parseDate(q.Get("from"), h.loc)
		if !ok {
			http.Error(w, "invalid from (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		to, ok := parseDate(q.Get("to"), h.loc)
		if !ok {
			http.Error(w, "invalid to (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		overrides, err := h.overrides.ListByRange(r.Context(), from, to)
		if err != nil {
			h.logger.Error("list overrides failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(overrides))
		for _, ov := range overrides {
			item := map[string]any{
				"id":        ov.ID,
				"date":      ov.Date.Format("2006-01-02"),
				"available": ov.Available,
				"reason":    ov.Reason,
			}
			if ov.EmployeeID != nil {
				item["employee_id"] = *ov.EmployeeID
			}
			if ov.StartMinute != nil {
				item["start_minute"] = *ov.StartMinute
				item["end_minute"] = *ov.EndMinute
			}
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"overrides": items})

	case http.MethodPost:
		var p overridePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		date, ok := parseDate(p.Date, h.loc)
		if !ok {
			http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		if (p.StartMinute == nil) != (p.EndMinute == nil) {
			http.Error(w, "start_minute and end_minute must be set together", http.StatusBadRequest)
			return
		}
		if p.StartMinute != nil {
			if *p.StartMinute < 0 || *p.EndMinute > 1440 || *p.StartMinute >= *p.EndMinute {
				http.Error(w, "override hours need 0 <= start_minute < end_minute <= 1440", http.StatusBadRequest)
				return
			}
		}
		ov := model.Override{
			EmployeeID:  p.EmployeeID,
			Date:        date,
			StartMinute: p.StartMinute,
			EndMinute:   p.EndMinute,
			Available:   p.Available,
			Reason:      strings.TrimSpace(p.Reason),
		}
		id, err := h.overrides.Upsert(r.Context(), &ov)
		if err != nil {
			h.logger.Error("upsert override failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id})

	case http.MethodDelete:
		id := queryInt64(r, "id")
		if id == 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := h.overrides.Delete(r.Context(), id); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "override not found", http.StatusNotFound)
				return
			}
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Quotes lists quotes for staff follow-up (GET ?status=&limit=) and records
// pricing or declines (POST {id, action, price}).
func (h *AdminHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := model.QuoteStatus(r.URL.Query().Get("status"))
		switch status {
		case "", model.QuotePending, model.QuoteAccepted, model.QuoteDeclined:
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		quotes, err := h.quotes.List(r.Context(), status, int(queryInt64(r, "limit")))
		if err != nil {
			h.logger.Error("list quotes failed", "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(quotes))
		for _, q := range quotes {
			item := map[string]any{
				"id":             q.ID,
				"service_id":     q.ServiceID,
				"customer_name":  q.CustomerName,
				"customer_email": q.CustomerEmail,
				"customer_phone": q.CustomerPhone,
				"price":          q.Price,
				"status":         string(q.Status),
				"created_at":     q.CreatedAt.Format(time.RFC3339),
			}
			if !q.RequestedDate.IsZero() {
				item["requested_date"] = q.RequestedDate.Format("2006-01-02")
			}
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"quotes": items})

	case http.MethodPost:
		var req struct {
			ID     int64  `json:"id"`
			Action string `json:"action"`
			Price  string `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		switch req.Action {
		case "price":
			price := strings.TrimSpace(req.Price)
			if price == "" {
				http.Error(w, "price required", http.StatusBadRequest)
				return
			}
			if err := h.quotes.SetPrice(r.Context(), req.ID, price); err != nil {
				if storage.IsNotFound(err) {
					http.Error(w, "no pending quote with that id", http.StatusNotFound)
					return
				}
				http.Error(w, "db error", http.StatusInternalServerError)
				return
			}
		case "decline":
			if err := h.booker.DeclineQuote(r.Context(), req.ID); err != nil {
				switch {
				case storage.IsNotFound(err):
					http.Error(w, "quote not found", http.StatusNotFound)
				case errors.Is(err, booking.ErrQuoteNotPending):
					http.Error(w, err.Error(), http.StatusConflict)
				default:
					h.logger.Error("decline quote failed", "id", req.ID, "err", err)
					http.Error(w, "db error", http.StatusInternalServerError)
				}
				return
			}
		default:
			http.Error(w, "action must be price or decline", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
