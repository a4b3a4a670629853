package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platemill/platemill/pkg/authz"
)

// ErrUserNotFound is returned when a user id resolves to no row.
var ErrUserNotFound = errors.New("auth: user not found")

// UserStore reads and mutates user accounts in Postgres.
type UserStore struct {
	db  *sql.DB
	dev *authz.DevPolicy
}

// NewUserStore creates a user store. The dev policy enforces the
// system-role mutation rules; nil uses the built-in policy.
func NewUserStore(db *sql.DB, dev *authz.DevPolicy) *UserStore {
	if dev == nil {
		dev = authz.NewDevPolicy()
	}
	return &UserStore{db: db, dev: dev}
}

const userColumns = `id, username, email, full_name, system_role, is_active, created_at, updated_at, last_login_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var email, fullName, systemRole sql.NullString
	err := row.Scan(
		&user.ID, &user.Username, &email, &fullName, &systemRole,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Email = email.String
	user.FullName = fullName.String
	user.SystemRole = authz.SystemRole(systemRole.String)
	return user, nil
}

// GetUser retrieves a user by id.
func (s *UserStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// SetSystemRole changes a user's system role, enforcing the operator
// rules: only a DEV actor may change system roles, and no actor may grant
// DEV to themself. Violations come back as authz.BusinessRuleError.
func (s *UserStore) SetSystemRole(ctx context.Context, actor *User, targetID int64, role authz.SystemRole) error {
	if actor == nil {
		return fmt.Errorf("%w: missing actor", authz.ErrInvalidInput)
	}
	if err := s.dev.ValidateSystemRoleChange(actor.ID, actor.SystemRole, targetID, role); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET system_role = $1, updated_at = NOW() WHERE id = $2`,
		nullableRole(role), targetID)
	if err != nil {
		return fmt.Errorf("failed to set system role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullableRole(role authz.SystemRole) sql.NullString {
	if role == authz.SystemRoleNone {
		return sql.NullString{}
	}
	return sql.NullString{String: string(role), Valid: true}
}
