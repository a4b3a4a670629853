package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platemill/platemill/pkg/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockUserStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db, nil), mock
}

func TestGetUser(t *testing.T) {
	store, mock := newMockUserStore(t)
	ctx := context.Background()

	t.Run("found with dev flag", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "username", "email", "full_name", "system_role",
			"is_active", "created_at", "updated_at", "last_login_at",
		}).AddRow(1, "ops", "ops@example.com", "Ops Person", "dev", true, time.Now(), time.Now(), nil)

		mock.ExpectQuery(`SELECT id, username, email`).
			WithArgs(int64(1)).
			WillReturnRows(rows)

		user, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "ops", user.Username)
		assert.True(t, user.IsDev())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, username, email`).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.GetUser(ctx, 99)
		assert.True(t, errors.Is(err, ErrUserNotFound))
	})
}

func TestSetSystemRole(t *testing.T) {
	ctx := context.Background()
	dev := &User{ID: 1, Username: "ops", SystemRole: authz.SystemRoleDev}
	plain := &User{ID: 2, Username: "someone"}

	t.Run("dev grants dev to another user", func(t *testing.T) {
		store, mock := newMockUserStore(t)
		mock.ExpectExec(`UPDATE users SET system_role`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetSystemRole(ctx, dev, 2, authz.SystemRoleDev))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self escalation is a business rule violation", func(t *testing.T) {
		store, _ := newMockUserStore(t)
		err := store.SetSystemRole(ctx, dev, dev.ID, authz.SystemRoleDev)
		require.Error(t, err)
		assert.True(t, authz.IsBusinessRule(err))
	})

	t.Run("non-dev actor rejected without touching storage", func(t *testing.T) {
		store, mock := newMockUserStore(t)
		err := store.SetSystemRole(ctx, plain, 3, authz.SystemRoleDev)
		require.Error(t, err)
		assert.True(t, authz.IsBusinessRule(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dev revokes own flag", func(t *testing.T) {
		store, mock := newMockUserStore(t)
		mock.ExpectExec(`UPDATE users SET system_role`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetSystemRole(ctx, dev, dev.ID, authz.SystemRoleNone))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown target", func(t *testing.T) {
		store, mock := newMockUserStore(t)
		mock.ExpectExec(`UPDATE users SET system_role`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.SetSystemRole(ctx, dev, 42, authz.SystemRoleDev)
		assert.True(t, errors.Is(err, ErrUserNotFound))
	})
}
