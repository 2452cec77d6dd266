package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	// Upsert inserts the account or, when the email exists, overwrites its
	// name, password hash, role and active flag.
	Upsert(ctx context.Context, staff *domain.StaffMember) error
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffSelect = `
        SELECT id, name, email, password_hash, role, active_flag, created_at, updated_at
        FROM staff_members`

func (r *staffRepository) Upsert(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (name, email, password_hash, role, active_flag)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (email) DO UPDATE
        SET name=EXCLUDED.name, password_hash=EXCLUDED.password_hash, role=EXCLUDED.role,
            active_flag=EXCLUDED.active_flag, updated_at=NOW()
        RETURNING id, created_at, updated_at`

	staff.Email = normalizeEmail(staff.Email)
	return r.pool.QueryRow(ctx, query,
		staff.Name,
		staff.Email,
		staff.PasswordHash,
		staff.Role,
		staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return r.fetchSingle(ctx, staffSelect+` WHERE id=$1`, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return r.fetchSingle(ctx, staffSelect+` WHERE email=$1`, normalizeEmail(email))
}

func (r *staffRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&staff.Role,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &staff, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
