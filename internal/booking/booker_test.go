package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/internal/outbox"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
)

// fakeTx satisfies pgx.Tx by embedding the interface; only Commit and
// Rollback are ever called by the code under test.
type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// memStore backs every store interface with maps, so a booking written by
// Create is visible to the next availability check.
type memStore struct {
	services map[int64]model.Service
	emps     map[int64]model.Employee

	nextApptID int64
	appts      map[int64]model.Appointment
	windows    map[int64]schedule.Window

	nextQuoteID int64
	quotes      map[int64]model.Quote

	idempotency map[string]storage.IdempotencyRecord
	events      []outbox.Event

	failCreateWithConflict bool
}

func newMemStore() *memStore {
	return &memStore{
		services:    map[int64]model.Service{},
		emps:        map[int64]model.Employee{},
		appts:       map[int64]model.Appointment{},
		windows:     map[int64]schedule.Window{},
		quotes:      map[int64]model.Quote{},
		idempotency: map[string]storage.IdempotencyRecord{},
	}
}

func (m *memStore) GetActive(_ context.Context, id int64) (model.Service, error) {
	svc, ok := m.services[id]
	if !ok || svc.Status != model.ServiceActive {
		return model.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (m *memStore) Get(_ context.Context, id int64) (model.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return model.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (m *memStore) GetEmployee(_ context.Context, id int64) (model.Employee, error) {
	emp, ok := m.emps[id]
	if !ok {
		return model.Employee{}, pgx.ErrNoRows
	}
	return emp, nil
}

func (m *memStore) ListActiveByService(_ context.Context, serviceID int64) ([]model.Employee, error) {
	var out []model.Employee
	var ids []int64
	for id := range m.emps {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		emp := m.emps[id]
		if emp.Status == model.EmployeeActive && emp.EligibleFor(serviceID) {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (m *memStore) FindEmployeeOverride(context.Context, int64, time.Time) (*model.Override, error) {
	return nil, nil
}

func (m *memStore) FindGlobalOverride(context.Context, time.Time) (*model.Override, error) {
	return nil, nil
}

func (m *memStore) FindActiveByEmployeeAndDate(_ context.Context, employeeID int64, date time.Time, excludeID int64) ([]schedule.BookedAppointment, error) {
	var out []schedule.BookedAppointment
	for id, appt := range m.appts {
		if excludeID > 0 && id == excludeID {
			continue
		}
		if !appt.Status.Blocking() || !appt.Date.Equal(date) {
			continue
		}
		assigned := false
		for _, eid := range appt.EmployeeIDs() {
			if eid == employeeID {
				assigned = true
			}
		}
		if !assigned {
			continue
		}
		svc := m.services[appt.ServiceID]
		out = append(out, schedule.BookedAppointment{
			ID:               id,
			ServiceStart:     appt.StartTime,
			ServiceEnd:       appt.EndTime,
			BufferBeforeMins: svc.BufferBeforeMins,
			BufferAfterMins:  svc.BufferAfterMins,
		})
	}
	return out, nil
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *memStore) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment, win schedule.Window) (int64, error) {
	if m.failCreateWithConflict {
		return 0, &pgconn.PgError{Code: "23P01"}
	}
	m.nextApptID++
	id := m.nextApptID
	stored := *appt
	stored.ID = id
	m.appts[id] = stored
	m.windows[id] = win
	return id, nil
}

func (m *memStore) GetAppt(id int64) (model.Appointment, bool) {
	appt, ok := m.appts[id]
	return appt, ok
}

func (m *memStore) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (model.Appointment, error) {
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func (m *memStore) UpdateStatus(_ context.Context, _ pgx.Tx, id int64, status model.AppointmentStatus) error {
	appt, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	appt.Status = status
	m.appts[id] = appt
	return nil
}

func (m *memStore) Cancel(_ context.Context, _ pgx.Tx, id int64, reason string) (time.Time, error) {
	appt, ok := m.appts[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	now := time.Now()
	appt.Status = model.AppointmentCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &now
	m.appts[id] = appt
	return now, nil
}

func (m *memStore) Reschedule(_ context.Context, _ pgx.Tx, appt *model.Appointment, win schedule.Window) error {
	if _, ok := m.appts[appt.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.appts[appt.ID] = *appt
	m.windows[appt.ID] = win
	return nil
}

func (m *memStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := m.idempotency[key]
	if ok {
		return rec, rec.StatusCode != 0, nil
	}
	rec = storage.IdempotencyRecord{Key: key}
	m.idempotency[key] = rec
	return rec, false, nil
}

func (m *memStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, key string, appointmentID int64, statusCode int, response []byte) error {
	m.idempotency[key] = storage.IdempotencyRecord{
		Key:             key,
		AppointmentID:   appointmentID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

func (m *memStore) CreateQuote(_ context.Context, _ pgx.Tx, q *model.Quote) (int64, error) {
	m.nextQuoteID++
	id := m.nextQuoteID
	stored := *q
	stored.ID = id
	m.quotes[id] = stored
	return id, nil
}

// apptStore adapts memStore to the AppointmentStore interface name set; its
// Get shadows the promoted service Get with the appointment signature.
type apptStore struct{ *memStore }

func (s apptStore) Get(_ context.Context, id int64) (model.Appointment, error) {
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

// quoteStore adapts memStore to the QuoteStore interface name set.
type quoteStore struct{ *memStore }

func (s quoteStore) Create(ctx context.Context, tx pgx.Tx, q *model.Quote) (int64, error) {
	return s.CreateQuote(ctx, tx, q)
}

func (s quoteStore) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (model.Quote, error) {
	q, ok := s.quotes[id]
	if !ok {
		return model.Quote{}, pgx.ErrNoRows
	}
	return q, nil
}

func (s quoteStore) SetStatus(_ context.Context, _ pgx.Tx, id int64, status model.QuoteStatus) error {
	q, ok := s.quotes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	q.Status = status
	s.quotes[id] = q
	return nil
}

func (m *memStore) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func testDate() time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
}

func seedStore() *memStore {
	m := newMemStore()
	m.services[1] = model.Service{
		ID:               1,
		Name:             "Deep Clean",
		DurationMins:     120,
		Capacity:         1,
		BufferBeforeMins: 15,
		BufferAfterMins:  15,
		MinAdvanceHours:  24,
		MaxAdvanceDays:   30,
		Status:           model.ServiceActive,
	}
	hours := model.WeeklyHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = model.DayHours{Enabled: true, StartMinute: 8 * 60, EndMinute: 18 * 60}
	}
	for id := int64(1); id <= 2; id++ {
		m.emps[id] = model.Employee{ID: id, Name: fmt.Sprintf("emp-%d", id), Status: model.EmployeeActive, Hours: hours}
	}
	return m
}

func newTestBooker(m *memStore) *Booker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cal := schedule.NewCalendar(m, logger)
	det := schedule.NewDetector(m)
	now := testDate().AddDate(0, 0, -2)
	eng := schedule.NewEngine(m, cal, det, logger).WithNow(func() time.Time { return now })
	resolver := schedule.NewResolver(eng, m)
	return NewBooker(m, apptStore{m}, quoteStore{m}, m, resolver, eng, NewSlotLock(nil, 0), logger)
}

func TestCreateBooksAppointment(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID:    1,
		Team:         schedule.SpecificTeam(1),
		Date:         testDate(),
		Start:        start,
		CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Booked() {
		t.Fatalf("not booked: decision %v", res.Decision.Outcome)
	}

	appt, ok := m.GetAppt(res.Appointment.ID)
	if !ok {
		t.Fatal("appointment not persisted")
	}
	if appt.Status != model.AppointmentPending {
		t.Fatalf("status = %s, want pending", appt.Status)
	}
	if !appt.StartTime.Equal(start) || !appt.EndTime.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("window = %v..%v", appt.StartTime, appt.EndTime)
	}

	win := m.windows[appt.ID]
	if !win.OccupiedStart.Equal(start.Add(-15 * time.Minute)) {
		t.Fatalf("occupied start = %v, want 15m before service", win.OccupiedStart)
	}

	if len(m.events) != 1 || m.events[0].Topic != outbox.TopicAppointmentBooked {
		t.Fatalf("events = %+v, want one booked event", m.events)
	}
}

// The exclusion constraint is the last line of defence: when the insert
// itself reports an overlap, Create answers CONFLICT rather than erroring.
func TestCreateMapsConstraintViolationToConflict(t *testing.T) {
	m := seedStore()
	m.failCreateWithConflict = true
	b := newTestBooker(m)

	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(),
		Start: testDate().Add(9 * time.Hour), CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Booked() {
		t.Fatal("constraint violation must not report a booking")
	}
	if res.Decision.Outcome != schedule.OutcomeConflict {
		t.Fatalf("decision = %v, want CONFLICT", res.Decision.Outcome)
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	if _, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	}); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// same employee, overlapping occupied window
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start.Add(2 * time.Hour), CustomerName: "Eli",
	})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if res.Booked() {
		t.Fatal("overlapping booking must be rejected")
	}
	if res.Decision.Outcome != schedule.OutcomeConflict {
		t.Fatalf("decision = %v, want CONFLICT", res.Decision.Outcome)
	}
	if len(m.appts) != 1 {
		t.Fatalf("%d appointments persisted, want 1", len(m.appts))
	}
	if len(m.events) != 1 {
		t.Fatalf("%d events emitted, want 1", len(m.events))
	}
}

func TestCreateAutoAssignSkipsBusyEmployee(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	first, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if !first.Booked() {
		t.Fatal("first booking failed")
	}

	second, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.AutoAssignTeam(), Date: testDate(), Start: start, CustomerName: "Eli",
	})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !second.Booked() {
		t.Fatalf("auto-assign failed: %v", second.Decision.Outcome)
	}
	if got := second.Appointment.Assignments[0].EmployeeID; got != 2 {
		t.Fatalf("assigned employee = %d, want 2", got)
	}
}

func TestCreateReplaysIdempotencyKey(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	req := CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start,
		CustomerName: "Dana", IdempotencyKey: "key-1",
	}
	first, err := b.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}

	second, err := b.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay for repeated idempotency key")
	}
	if string(second.Payload) != string(first.Payload) {
		t.Fatalf("replayed payload %q != original %q", second.Payload, first.Payload)
	}

	var resp CreateResponse
	if err := json.Unmarshal(second.Payload, &resp); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if resp.AppointmentID != first.Appointment.ID {
		t.Fatalf("replayed id = %d, want %d", resp.AppointmentID, first.Appointment.ID)
	}
	if len(m.appts) != 1 {
		t.Fatalf("%d appointments persisted, want 1", len(m.appts))
	}
}

func TestCreateFromQuote(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	quote, err := b.RequestQuote(context.Background(), model.Quote{
		ServiceID:     1,
		CustomerName:  "Dana",
		CustomerEmail: "dana@example.com",
		RequestedDate: testDate(),
		Price:         "180.00",
	})
	if err != nil {
		t.Fatalf("RequestQuote: %v", err)
	}
	if quote.Status != model.QuotePending {
		t.Fatalf("quote status = %s, want pending", quote.Status)
	}

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, QuoteID: &quote.ID, Team: schedule.AutoAssignTeam(),
		Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Booked() {
		t.Fatalf("not booked: %v", res.Decision.Outcome)
	}
	if res.Appointment.Price != "180.00" {
		t.Fatalf("price = %q, want quote price carried over", res.Appointment.Price)
	}
	if m.quotes[quote.ID].Status != model.QuoteAccepted {
		t.Fatalf("quote status = %s, want accepted", m.quotes[quote.ID].Status)
	}

	// a second conversion attempt must fail
	_, err = b.Create(context.Background(), CreateRequest{
		ServiceID: 1, QuoteID: &quote.ID, Team: schedule.AutoAssignTeam(),
		Date: testDate(), Start: testDate().Add(14 * time.Hour), CustomerName: "Dana",
	})
	if !errors.Is(err, ErrQuoteNotPending) {
		t.Fatalf("err = %v, want ErrQuoteNotPending", err)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := b.Cancel(context.Background(), res.Appointment.ID, "customer request")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.AppointmentCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled = %+v", cancelled)
	}

	// the slot opens back up
	again, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Eli",
	})
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if !again.Booked() {
		t.Fatalf("rebook rejected: %v", again.Decision.Outcome)
	}

	if len(m.events) != 3 { // booked, cancelled, booked
		t.Fatalf("%d events, want 3", len(m.events))
	}
	if m.events[1].Topic != outbox.TopicAppointmentCancelled {
		t.Fatalf("second event = %s, want cancelled", m.events[1].Topic)
	}
}

func TestCancelCompletedRejected(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id := res.Appointment.ID
	for _, status := range []model.AppointmentStatus{model.AppointmentConfirmed, model.AppointmentInProgress, model.AppointmentCompleted} {
		if _, err := b.UpdateStatus(context.Background(), id, status); err != nil {
			t.Fatalf("UpdateStatus %s: %v", status, err)
		}
	}

	if _, err := b.Cancel(context.Background(), id, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateStatusEmitsConfirmed(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := b.UpdateStatus(context.Background(), res.Appointment.ID, model.AppointmentConfirmed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(m.events) != 2 || m.events[1].Topic != outbox.TopicAppointmentConfirmed {
		t.Fatalf("events = %+v, want confirmed event", m.events)
	}

	// skipping states is rejected
	if _, err := b.UpdateStatus(context.Background(), res.Appointment.ID, model.AppointmentCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRescheduleExcludesSelf(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// shift by one hour; the only overlap is with itself
	moved, decision, err := b.Reschedule(context.Background(), res.Appointment.ID, testDate(), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !decision.Available() {
		t.Fatalf("decision = %v, want AVAILABLE", decision.Outcome)
	}
	if !moved.StartTime.Equal(start.Add(time.Hour)) {
		t.Fatalf("start = %v, want %v", moved.StartTime, start.Add(time.Hour))
	}
	if m.events[len(m.events)-1].Topic != outbox.TopicAppointmentRescheduled {
		t.Fatalf("last event = %s, want rescheduled", m.events[len(m.events)-1].Topic)
	}
}

func TestRescheduleCompletedRejected(t *testing.T) {
	m := seedStore()
	b := newTestBooker(m)

	start := testDate().Add(9 * time.Hour)
	res, err := b.Create(context.Background(), CreateRequest{
		ServiceID: 1, Team: schedule.SpecificTeam(1), Date: testDate(), Start: start, CustomerName: "Dana",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := res.Appointment.ID
	for _, status := range []model.AppointmentStatus{model.AppointmentConfirmed, model.AppointmentInProgress, model.AppointmentCompleted} {
		if _, err := b.UpdateStatus(context.Background(), id, status); err != nil {
			t.Fatalf("UpdateStatus %s: %v", status, err)
		}
	}

	if _, _, err := b.Reschedule(context.Background(), id, testDate(), start.Add(time.Hour)); !errors.Is(err, ErrNotReschedulable) {
		t.Fatalf("err = %v, want ErrNotReschedulable", err)
	}
}
