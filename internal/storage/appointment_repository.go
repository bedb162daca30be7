package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/libs/db"
)

// AppointmentRepository persists appointments and their employee
// assignments. Each assignment row carries the range
// [service_start, service_end + buffer_after); a GiST exclusion constraint
// on (employee_id, occupied) rejects overlapping inserts for the same
// employee, which is the final defence against two concurrent bookings that
// both saw the slot as free. The lead buffer stays out of the stored range
// so two legal back-to-back bookings, which share their transition gap, do
// not trip the constraint.
type AppointmentRepository struct {
	pool *db.Pool
}

// IdempotencyRecord is a completed booking response replayed for a repeated
// Idempotency-Key.
type IdempotencyRecord struct {
	Key             string
	AppointmentID   int64
	StatusCode      int
	ResponsePayload []byte
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockIdempotencyKey claims the key inside tx. It returns the stored record
// and true when a previous attempt already completed, or a blank record and
// false when this attempt owns the key.
func (r *AppointmentRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, bool, error) {
	rec, err := selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, rec.StatusCode != 0, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = selectIdempotencyForUpdate(ctx, tx, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, rec.StatusCode != 0, nil
}

func (r *AppointmentRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key string, appointmentID int64, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $2,
			status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, appointmentID, statusCode, response)
	return err
}

// Create inserts the appointment and one assignment row per team member.
// The assignment insert trips the exclusion constraint on overlap; callers
// map that with IsConflict.
func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment, win schedule.Window) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(service_id, quote_id, date, start_time, end_time, status, price,
			 customer_name, customer_email, customer_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, appt.ServiceID, appt.QuoteID, appt.Date, appt.StartTime, appt.EndTime, appt.Status,
		appt.Price, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, asg := range appt.Assignments {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_employees (appointment_id, employee_id, role, occupied)
			VALUES ($1, $2, $3, tstzrange($4, $5, '[)'))
		`, id, asg.EmployeeID, asg.Role, win.ServiceStart, win.OccupiedEnd)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

const appointmentColumns = `
	id, service_id, quote_id, date, start_time, end_time, status, price,
	customer_name, customer_email, customer_phone,
	COALESCE(cancel_reason, ''), cancelled_at, created_at`

func (r *AppointmentRepository) Get(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Assignments, err = r.loadAssignments(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT employee_id, role
		FROM appointment_employees
		WHERE appointment_id = $1
		ORDER BY employee_id ASC
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var asg model.Assignment
		if err := rows.Scan(&asg.EmployeeID, &asg.Role); err != nil {
			return model.Appointment{}, err
		}
		appt.Assignments = append(appt.Assignments, asg)
	}
	if rows.Err() != nil {
		return model.Appointment{}, rows.Err()
	}
	return appt, nil
}

// FindActiveByEmployeeAndDate returns the blocking appointments for one
// employee on one date, each carrying the owning service's CURRENT buffer
// configuration. Buffer changes therefore apply to all future checks without
// touching stored rows.
func (r *AppointmentRepository) FindActiveByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time, excludeID int64) ([]schedule.BookedAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.start_time, a.end_time, s.buffer_before_mins, s.buffer_after_mins
		FROM appointments a
		JOIN appointment_employees ae ON ae.appointment_id = a.id
		JOIN services s ON s.id = a.service_id
		WHERE ae.employee_id = $1
			AND a.date = $2
			AND a.status <> 'cancelled'
			AND ($3 = 0 OR a.id <> $3)
		ORDER BY a.start_time ASC
	`, employeeID, date, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var booked []schedule.BookedAppointment
	for rows.Next() {
		var b schedule.BookedAppointment
		if err := rows.Scan(&b.ID, &b.ServiceStart, &b.ServiceEnd, &b.BufferBeforeMins, &b.BufferAfterMins); err != nil {
			return nil, err
		}
		booked = append(booked, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return booked, nil
}

// ListFilter narrows List; zero values mean no filter.
type ListFilter struct {
	From       time.Time
	To         time.Time
	EmployeeID int64
	Status     model.AppointmentStatus
	Limit      int
}

func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE ($1::timestamptz = 'epoch'::timestamptz OR date >= $1)
			AND ($2::timestamptz = 'epoch'::timestamptz OR date <= $2)
			AND ($3 = 0 OR id IN (SELECT appointment_id FROM appointment_employees WHERE employee_id = $3))
			AND ($4 = '' OR status = $4)
		ORDER BY start_time DESC
		LIMIT $5
	`, zeroToEpoch(f.From), zeroToEpoch(f.To), f.EmployeeID, string(f.Status), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range appts {
		appts[i].Assignments, err = r.loadAssignments(ctx, appts[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return appts, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status model.AppointmentStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Cancel marks the appointment cancelled and clears its assignment rows so
// the exclusion constraint frees the occupied windows.
func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id int64, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	if err != nil {
		return time.Time{}, err
	}
	_, err = tx.Exec(ctx, `DELETE FROM appointment_employees WHERE appointment_id = $1`, id)
	if err != nil {
		return time.Time{}, err
	}
	return cancelledAt, nil
}

// Reschedule moves the appointment and rewrites its assignment rows with the
// new occupied range. The delete-then-insert runs in one transaction, so the
// constraint sees only the final state.
func (r *AppointmentRepository) Reschedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment, win schedule.Window) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, start_time = $3, end_time = $4
		WHERE id = $1
	`, appt.ID, appt.Date, appt.StartTime, appt.EndTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `DELETE FROM appointment_employees WHERE appointment_id = $1`, appt.ID); err != nil {
		return err
	}
	for _, asg := range appt.Assignments {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_employees (appointment_id, employee_id, role, occupied)
			VALUES ($1, $2, $3, tstzrange($4, $5, '[)'))
		`, appt.ID, asg.EmployeeID, asg.Role, win.ServiceStart, win.OccupiedEnd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *AppointmentRepository) loadAssignments(ctx context.Context, id int64) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_id, role
		FROM appointment_employees
		WHERE appointment_id = $1
		ORDER BY employee_id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var asg model.Assignment
		if err := rows.Scan(&asg.EmployeeID, &asg.Role); err != nil {
			return nil, err
		}
		assignments = append(assignments, asg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return assignments, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ServiceID,
		&appt.QuoteID,
		&appt.Date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Price,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.CancelReason,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func zeroToEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}

func selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(appointment_id, 0),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(
		&rec.Key,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
