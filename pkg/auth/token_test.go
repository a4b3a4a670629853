package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGeneratorRoundTrip(t *testing.T) {
	gen := NewTokenGenerator()

	token, hash, prefix, err := gen.GenerateToken()
	require.NoError(t, err)

	assert.True(t, len(token) > len(TokenPrefix))
	assert.Regexp(t, regexp.MustCompile(`^pm_`), token)
	assert.Equal(t, hash, gen.HashToken(token))
	assert.Regexp(t, regexp.MustCompile(`^pm_.{8}$`), prefix)
	require.NoError(t, gen.ValidateTokenFormat(token))
}

func TestTokenGeneratorUnique(t *testing.T) {
	gen := NewTokenGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, _, err := gen.GenerateToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestValidateTokenFormat(t *testing.T) {
	gen := NewTokenGenerator()

	assert.Error(t, gen.ValidateTokenFormat("tok_abcdef"))
	assert.Error(t, gen.ValidateTokenFormat("pm_"))
	assert.Error(t, gen.ValidateTokenFormat("pm_!!!not-base64!!!"))
	assert.Error(t, gen.ValidateTokenFormat(""))
}

func TestTokenManagerValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		token, _, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT id, user_id, token_hash`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err = tm.ValidateToken(ctx, token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})

	t.Run("bad format rejected before storage", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		_, err = tm.ValidateToken(ctx, "garbage")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		token, hash, prefix, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)
		revokedAt := time.Now().Add(-time.Hour)

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "token_hash", "token_prefix", "name",
			"impersonated_by", "expires_at", "last_used_at", "created_at", "revoked_at",
		}).AddRow(1, 7, hash, prefix, "cli", nil, nil, nil, time.Now().Add(-24*time.Hour), revokedAt)

		mock.ExpectQuery(`SELECT id, user_id, token_hash`).
			WithArgs(hash).
			WillReturnRows(rows)

		_, err = tm.ValidateToken(ctx, token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})

	t.Run("valid token resolves", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		token, hash, prefix, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "token_hash", "token_prefix", "name",
			"impersonated_by", "expires_at", "last_used_at", "created_at", "revoked_at",
		}).AddRow(1, 7, hash, prefix, "cli", nil, nil, nil, time.Now().Add(-24*time.Hour), nil)

		mock.ExpectQuery(`SELECT id, user_id, token_hash`).
			WithArgs(hash).
			WillReturnRows(rows)
		mock.ExpectExec(`UPDATE tokens SET last_used_at`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		got, err := tm.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.UserID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRevokeUserToken(t *testing.T) {
	ctx := context.Background()

	t.Run("own token revoked", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		mock.ExpectExec(`UPDATE tokens SET revoked_at`).
			WithArgs(int64(3), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, tm.RevokeUserToken(ctx, 7, 3))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's token looks missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		tm := NewTokenManager(db)

		mock.ExpectExec(`UPDATE tokens SET revoked_at`).
			WithArgs(int64(3), int64(8)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = tm.RevokeUserToken(ctx, 8, 3)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})
}

func TestListTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tm := NewTokenManager(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "token_prefix", "name",
		"impersonated_by", "expires_at", "last_used_at", "created_at", "revoked_at",
	}).
		AddRow(2, 7, "hash2", "pm_bbbbbbbb", "laptop", nil, nil, nil, now, nil).
		AddRow(1, 7, "hash1", "pm_aaaaaaaa", "ci", nil, nil, nil, now.Add(-time.Hour), nil)

	mock.ExpectQuery(`SELECT id, user_id, token_hash.*FROM tokens WHERE user_id`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	tokens, err := tm.ListTokens(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "laptop", tokens[0].Name)
	assert.Equal(t, "ci", tokens[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
