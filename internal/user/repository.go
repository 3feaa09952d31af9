package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-otp-auth/internal/database"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrConditionFailed = errors.New("user record changed concurrently")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Repository handles user data persistence
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new unverified, active user. The unique constraint on email
// decides concurrent registrations of the same address.
func (r *Repository) Create(ctx context.Context, nu NewUser) (*User, error) {
	now := r.now().UTC()
	dbUser := &database.User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		AvatarID:     nu.AvatarID,
		IsVerified:   false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", NormalizeEmail(email)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// UpdateFields writes the given columns of one user and bumps updated_at.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, set Fields) error {
	q, err := r.updateQuery(id, set)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateFieldsIf writes set only while every column in expect still holds the
// expected value. It returns ErrConditionFailed when no row matched.
func (r *Repository) UpdateFieldsIf(ctx context.Context, id uuid.UUID, expect, set Fields) error {
	q, err := r.updateQuery(id, set)
	if err != nil {
		return err
	}

	for _, col := range sortedColumns(expect) {
		if !writableColumns[col] {
			return fmt.Errorf("column %q cannot be used as a condition", col)
		}
		if v := expect[col]; v == nil {
			q = q.Where("? IS NULL", bun.Ident(col))
		} else {
			q = q.Where("? = ?", bun.Ident(col), v)
		}
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrConditionFailed
	}

	return nil
}

func (r *Repository) updateQuery(id uuid.UUID, set Fields) (*bun.UpdateQuery, error) {
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	q := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Where("id = ?", id)

	for _, col := range sortedColumns(set) {
		if !writableColumns[col] {
			return nil, fmt.Errorf("column %q is not writable", col)
		}
		q = q.Set("? = ?", bun.Ident(col), set[col])
	}

	return q.Set("updated_at = ?", r.now().UTC()), nil
}

// sortedColumns keeps generated SQL stable across calls.
func sortedColumns(f Fields) []string {
	cols := make([]string, 0, len(f))
	for col := range f {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	// modernc.org/sqlite reports constraint failures only through the message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		FirstName:    dbu.FirstName,
		LastName:     dbu.LastName,
		AvatarID:     dbu.AvatarID,
		IsVerified:   dbu.IsVerified,
		IsActive:     dbu.IsActive,
		OTPCode:      dbu.OTPCode,
		OTPIssuedAt:  dbu.OTPIssuedAt,
		OTPExpiresAt: dbu.OTPExpiresAt,
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
}
