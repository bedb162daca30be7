package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/j-arredondo/cleansched/internal/model"
	"github.com/j-arredondo/cleansched/libs/db"
)

// EmployeeRepository persists employees with their recurring weekly hours and
// service eligibility. Weekdays are stored as 0=Sunday..6=Saturday, matching
// time.Weekday.
type EmployeeRepository struct {
	pool *db.Pool
}

func NewEmployeeRepository(pool *db.Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

func (r *EmployeeRepository) Create(ctx context.Context, emp *model.Employee) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO employees (name, status)
		VALUES ($1, $2)
		RETURNING id
	`, emp.Name, emp.Status).Scan(&id)
	if err != nil {
		return 0, err
	}

	if err := replaceWorkingHours(ctx, tx, id, emp.Hours); err != nil {
		return 0, err
	}
	if err := replaceServiceLinks(ctx, tx, id, emp.ServiceIDs); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEmployee loads one employee with hours and eligibility.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id int64) (model.Employee, error) {
	var emp model.Employee
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, status, created_at
		FROM employees
		WHERE id = $1
	`, id).Scan(&emp.ID, &emp.Name, &emp.Status, &emp.CreatedAt)
	if err != nil {
		return model.Employee{}, err
	}

	emp.Hours, err = r.loadHours(ctx, id)
	if err != nil {
		return model.Employee{}, err
	}
	emp.ServiceIDs, err = r.loadServiceLinks(ctx, id)
	if err != nil {
		return model.Employee{}, err
	}
	return emp, nil
}

func (r *EmployeeRepository) List(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, status, created_at
		FROM employees
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var emp model.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Status, &emp.CreatedAt); err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range employees {
		employees[i].Hours, err = r.loadHours(ctx, employees[i].ID)
		if err != nil {
			return nil, err
		}
		employees[i].ServiceIDs, err = r.loadServiceLinks(ctx, employees[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return employees, nil
}

// ListActiveByService returns active employees eligible for the service in
// ascending id order. Employees with no eligibility rows are eligible for
// everything.
func (r *EmployeeRepository) ListActiveByService(ctx context.Context, serviceID int64) ([]model.Employee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.name, e.status, e.created_at
		FROM employees e
		WHERE e.status = 'active'
			AND (
				NOT EXISTS (SELECT 1 FROM employee_services es WHERE es.employee_id = e.id)
				OR EXISTS (SELECT 1 FROM employee_services es WHERE es.employee_id = e.id AND es.service_id = $1)
			)
		ORDER BY e.id ASC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var emp model.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Status, &emp.CreatedAt); err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range employees {
		employees[i].Hours, err = r.loadHours(ctx, employees[i].ID)
		if err != nil {
			return nil, err
		}
		employees[i].ServiceIDs, err = r.loadServiceLinks(ctx, employees[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return employees, nil
}

func (r *EmployeeRepository) Update(ctx context.Context, emp *model.Employee) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE employees SET name = $2, status = $3 WHERE id = $1
	`, emp.ID, emp.Name, emp.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := replaceWorkingHours(ctx, tx, emp.ID, emp.Hours); err != nil {
		return err
	}
	if err := replaceServiceLinks(ctx, tx, emp.ID, emp.ServiceIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EmployeeRepository) SetStatus(ctx context.Context, id int64, status model.EmployeeStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE employees SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetWorkingHours replaces the full weekly schedule in one transaction so a
// partial write can never leave a half-updated week.
func (r *EmployeeRepository) SetWorkingHours(ctx context.Context, id int64, hours model.WeeklyHours) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	if err := replaceWorkingHours(ctx, tx, id, hours); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EmployeeRepository) loadHours(ctx context.Context, id int64) (model.WeeklyHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM employee_working_hours
		WHERE employee_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hours := model.WeeklyHours{}
	for rows.Next() {
		var weekday int
		var day model.DayHours
		if err := rows.Scan(&weekday, &day.Enabled, &day.StartMinute, &day.EndMinute); err != nil {
			return nil, err
		}
		hours[time.Weekday(weekday)] = day
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hours, nil
}

func (r *EmployeeRepository) loadServiceLinks(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT service_id
		FROM employee_services
		WHERE employee_id = $1
		ORDER BY service_id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var serviceID int64
		if err := rows.Scan(&serviceID); err != nil {
			return nil, err
		}
		ids = append(ids, serviceID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

func replaceWorkingHours(ctx context.Context, tx pgx.Tx, id int64, hours model.WeeklyHours) error {
	if _, err := tx.Exec(ctx, `DELETE FROM employee_working_hours WHERE employee_id = $1`, id); err != nil {
		return err
	}
	for weekday, day := range hours {
		_, err := tx.Exec(ctx, `
			INSERT INTO employee_working_hours (employee_id, weekday, enabled, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, id, int(weekday), day.Enabled, day.StartMinute, day.EndMinute)
		if err != nil {
			return err
		}
	}
	return nil
}

func replaceServiceLinks(ctx context.Context, tx pgx.Tx, id int64, serviceIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM employee_services WHERE employee_id = $1`, id); err != nil {
		return err
	}
	for _, serviceID := range serviceIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO employee_services (employee_id, service_id)
			VALUES ($1, $2)
		`, id, serviceID)
		if err != nil {
			return err
		}
	}
	return nil
}
