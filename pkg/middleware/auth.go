package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/contextkeys"
	"github.com/platemill/platemill/pkg/httputil"
)

// AuthMiddleware resolves bearer tokens into an authenticated user.
type AuthMiddleware struct {
	tokens   *auth.TokenManager
	users    *auth.UserStore
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens *auth.TokenManager, users *auth.UserStore, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		users:    users,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		token, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if errors.Is(err, auth.ErrTokenInvalid) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if err != nil {
			httputil.WriteInternal(w)
			return
		}

		// A token without a backing user means the token is stale; any
		// other failure is a storage outage, not a refusal.
		user, err := m.users.GetUser(r.Context(), token.UserID)
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if err != nil {
			httputil.WriteInternal(w)
			return
		}
		if !user.IsActive {
			httputil.WriteUnauthorized(w, "account is deactivated")
			return
		}

		authCtx := &auth.AuthContext{
			User:  user,
			Token: token,
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ctx := r.Context().Value(contextkeys.AuthKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
