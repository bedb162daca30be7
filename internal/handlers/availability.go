package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
)

type AvailabilityHandler struct {
	services  *storage.ServiceRepository
	employees *storage.EmployeeRepository
	engine    *schedule.Engine
	loc       *time.Location
	logger    *slog.Logger
}

func NewAvailabilityHandler(
	services *storage.ServiceRepository,
	employees *storage.EmployeeRepository,
	engine *schedule.Engine,
	loc *time.Location,
	logger *slog.Logger,
) *AvailabilityHandler {
	return &AvailabilityHandler{
		services:  services,
		employees: employees,
		engine:    engine,
		loc:       loc,
		logger:    logger,
	}
}

type serviceItem struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DurationMins    int    `json:"duration_mins"`
	Price           string `json:"price,omitempty"`
	Capacity        int    `json:"capacity"`
	MinAdvanceHours int    `json:"min_advance_hours"`
	MaxAdvanceDays  int    `json:"max_advance_days"`
}

// Services lists bookable services.
func (h *AvailabilityHandler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	services, err := h.services.List(r.Context(), true)
	if err != nil {
		h.logger.Error("list services failed", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	items := make([]serviceItem, 0, len(services))
	for _, svc := range services {
		items = append(items, serviceItem{
			ID:              svc.ID,
			Name:            svc.Name,
			DurationMins:    svc.DurationMins,
			Price:           svc.Price,
			Capacity:        svc.Capacity,
			MinAdvanceHours: svc.MinAdvanceHours,
			MaxAdvanceDays:  svc.MaxAdvanceDays,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}

type slotItem struct {
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	EmployeeIDs []int64 `json:"employee_ids"`
}

// Slots enumerates the free start times for a service on a date.
// Query params: service_id, date (YYYY-MM-DD), optional employee_id,
// optional step_mins.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceID := queryInt64(r, "service_id")
	if serviceID == 0 {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	date, ok := parseDate(r.URL.Query().Get("date"), h.loc)
	if !ok {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.services.GetActive(ctx, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	var candidates []int64
	if id := queryInt64(r, "employee_id"); id != 0 {
		candidates = []int64{id}
	} else {
		emps, err := h.employees.ListActiveByService(ctx, serviceID)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		for _, emp := range emps {
			candidates = append(candidates, emp.ID)
		}
	}

	step := time.Duration(queryInt64(r, "step_mins")) * time.Minute
	slots, err := h.engine.ListFreeSlots(ctx, svc, date, candidates, step)
	if err != nil {
		h.logger.Error("list slots failed", "service_id", serviceID, "date", date, "err", err)
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:   s.Start.Format(time.RFC3339),
			EndTime:     s.Start.Add(svc.Duration()).Format(time.RFC3339),
			EmployeeIDs: s.EmployeeIDs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"slots": items,
	})
}

type checkRequest struct {
	ServiceID   int64   `json:"service_id"`
	EmployeeIDs []int64 `json:"employee_ids"`
	Date        string  `json:"date"`
	StartTime   string  `json:"start_time"`
}

type checkResponse struct {
	Outcome    string        `json:"outcome"`
	StartTime  string        `json:"start_time"`
	EndTime    string        `json:"end_time"`
	EmployeeID int64         `json:"employee_id,omitempty"`
	Conflict   *conflictItem `json:"conflict,omitempty"`
	Notice     *noticeItem   `json:"notice,omitempty"`
}

type conflictItem struct {
	AppointmentID int64  `json:"appointment_id"`
	OccupiedStart string `json:"occupied_start"`
	OccupiedEnd   string `json:"occupied_end"`
}

type noticeItem struct {
	Violation string  `json:"violation"`
	LeadHours float64 `json:"lead_hours"`
}

// Check answers whether one slot is bookable for the given employees.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ServiceID == 0 || len(req.EmployeeIDs) == 0 {
		http.Error(w, "service_id and employee_ids required", http.StatusBadRequest)
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

	ctx := r.Context()
	svc, err := h.services.GetActive(ctx, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	res, err := h.engine.CheckSlot(ctx, svc, req.EmployeeIDs, date, start, 0)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "employee not found", http.StatusNotFound)
			return
		}
		h.logger.Error("check slot failed", "service_id", req.ServiceID, "err", err)
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, renderDecision(res))
}

// decisionStatus maps a failed slot check to the HTTP status a booking
// attempt should return: 409 when another appointment holds the slot,
// 422 when the request itself is unservable.
func decisionStatus(res schedule.Result) int {
	if res.Outcome == schedule.OutcomeConflict {
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func renderDecision(res schedule.Result) checkResponse {
	out := checkResponse{
		Outcome:    res.Outcome.String(),
		StartTime:  res.Window.ServiceStart.Format(time.RFC3339),
		EndTime:    res.Window.ServiceEnd.Format(time.RFC3339),
		EmployeeID: res.EmployeeID,
	}
	if res.Conflict != nil {
		out.Conflict = &conflictItem{
			AppointmentID: res.Conflict.AppointmentID,
			OccupiedStart: res.Conflict.OccupiedStart.Format(time.RFC3339),
			OccupiedEnd:   res.Conflict.OccupiedEnd.Format(time.RFC3339),
		}
	}
	if res.Notice != nil && res.Notice.Violation != schedule.NoticeOK {
		out.Notice = &noticeItem{
			Violation: res.Notice.Violation.String(),
			LeadHours: res.Notice.Lead.Hours(),
		}
	}
	return out
}
