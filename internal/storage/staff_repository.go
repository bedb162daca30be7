package storage

import (
	"context"
	"time"

	"github.com/j-arredondo/cleansched/libs/db"
)

type StaffAccount struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) Create(ctx context.Context, acct *StaffAccount) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff_accounts (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id
	`, acct.Email, acct.PasswordHash, acct.Role).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (StaffAccount, error) {
	var acct StaffAccount
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM staff_accounts
		WHERE email = $1
	`, email).Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.Role, &acct.CreatedAt)
	if err != nil {
		return StaffAccount{}, err
	}
	return acct, nil
}

func (r *StaffRepository) Get(ctx context.Context, id int64) (StaffAccount, error) {
	var acct StaffAccount
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM staff_accounts
		WHERE id = $1
	`, id).Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.Role, &acct.CreatedAt)
	if err != nil {
		return StaffAccount{}, err
	}
	return acct, nil
}
