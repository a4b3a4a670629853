package auth

import (
	"time"

	"github.com/platemill/platemill/pkg/authz"
)

// User is an account on the platform. The organization role lives on the
// membership, not here; SystemRole is the organization-independent
// operator flag and is persisted as its own column.
type User struct {
	ID          int64            `json:"id"`
	Username    string           `json:"username"`
	Email       string           `json:"email,omitempty"`
	FullName    string           `json:"full_name,omitempty"`
	SystemRole  authz.SystemRole `json:"system_role,omitempty"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
}

// IsDev reports whether the user carries the platform operator flag.
func (u *User) IsDev() bool {
	return u != nil && u.SystemRole == authz.SystemRoleDev
}

// Token is an opaque bearer token. Only the SHA-256 hash is stored; the
// plaintext is returned once at creation.
type Token struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	TokenHash   string `json:"-"`
	TokenPrefix string `json:"token_prefix"`
	Name        string `json:"name"`
	// ImpersonatedBy records the operator behind an impersonation
	// session; nil for ordinary tokens.
	ImpersonatedBy *int64     `json:"impersonated_by,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// AuthContext holds the authenticated identity for one request.
type AuthContext struct {
	User  *User
	Token *Token
}
