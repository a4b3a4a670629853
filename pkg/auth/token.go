package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Platemill tokens.
	TokenPrefix = "pm_"
	// TokenLength is the number of random bytes per token (256 bits).
	TokenLength = 32
)

// ErrTokenInvalid covers unknown, revoked, and expired tokens. The
// middleware maps it to 401 without distinguishing the cases to callers.
var ErrTokenInvalid = errors.New("auth: invalid token")

// TokenGenerator generates and hashes opaque bearer tokens.
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a token of the form pm_<base64url(32 bytes)> and
// returns the plaintext, its SHA-256 hash, and a display prefix.
func (tg *TokenGenerator) GenerateToken() (token, tokenHash, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))
	prefix := TokenPrefix
	if len(encoded) >= 8 {
		prefix = TokenPrefix + encoded[:8]
	}

	return fullToken, hex.EncodeToString(hash[:]), prefix, nil
}

// HashToken computes the SHA-256 hash used for storage lookups.
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks structure without touching storage.
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// TokenManager manages bearer token lifecycle against Postgres.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a token manager backed by db.
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{db: db, generator: NewTokenGenerator()}
}

// CreateToken mints a token for a user. The plaintext is returned exactly
// once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, impersonatedBy *int64, expiresAt *time.Time) (*Token, string, error) {
	plaintext, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := &Token{
		UserID:         userID,
		TokenHash:      tokenHash,
		TokenPrefix:    tokenPrefix,
		Name:           name,
		ImpersonatedBy: impersonatedBy,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now(),
	}

	query := `
		INSERT INTO tokens (user_id, token_hash, token_prefix, name, impersonated_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = tm.db.QueryRowContext(ctx, query,
		token.UserID, token.TokenHash, token.TokenPrefix, token.Name,
		token.ImpersonatedBy, token.ExpiresAt, token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, plaintext, nil
}

// ValidateToken resolves a plaintext token to its record, rejecting
// revoked and expired tokens. Unknown tokens return ErrTokenInvalid, not a
// storage error.
func (tm *TokenManager) ValidateToken(ctx context.Context, plaintext string) (*Token, error) {
	if err := tm.generator.ValidateTokenFormat(plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	query := `
		SELECT id, user_id, token_hash, token_prefix, name, impersonated_by, expires_at, last_used_at, created_at, revoked_at
		FROM tokens
		WHERE token_hash = $1
	`
	token := &Token{}
	err := tm.db.QueryRowContext(ctx, query, tm.generator.HashToken(plaintext)).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.TokenPrefix, &token.Name,
		&token.ImpersonatedBy, &token.ExpiresAt, &token.LastUsedAt, &token.CreatedAt, &token.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if token.RevokedAt != nil {
		return nil, fmt.Errorf("%w: revoked", ErrTokenInvalid)
	}
	if token.ExpiresAt != nil && token.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: expired", ErrTokenInvalid)
	}

	// Best effort; a failed timestamp update must not fail the request.
	_, _ = tm.db.ExecContext(ctx, `UPDATE tokens SET last_used_at = NOW() WHERE id = $1`, token.ID)

	return token, nil
}

// RevokeToken revokes a token by id.
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		`UPDATE tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTokenInvalid
	}
	return nil
}

// RevokeUserToken revokes a token only if it belongs to userID, so users
// cannot revoke each other's tokens by guessing ids.
func (tm *TokenManager) RevokeUserToken(ctx context.Context, userID, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		`UPDATE tokens SET revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTokenInvalid
	}
	return nil
}

const tokenColumns = `id, user_id, token_hash, token_prefix, name, impersonated_by, expires_at, last_used_at, created_at, revoked_at`

func scanTokenRows(rows *sql.Rows) (*Token, error) {
	token := &Token{}
	err := rows.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.TokenPrefix, &token.Name,
		&token.ImpersonatedBy, &token.ExpiresAt, &token.LastUsedAt, &token.CreatedAt, &token.RevokedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return token, nil
}

// ListTokens returns the user's tokens, newest first. Plaintext is never
// recoverable; only prefixes are shown.
func (tm *TokenManager) ListTokens(ctx context.Context, userID int64) ([]*Token, error) {
	rows, err := tm.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 AND revoked_at IS NULL ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token, err := scanTokenRows(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens past their expiry. Run periodically
// by the janitor.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tokens: %w", err)
	}
	return result.RowsAffected()
}
