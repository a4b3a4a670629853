// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/platemill/platemill/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.AuthKey, authCtx)
//   authCtx := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.Authenticate (pkg/middleware/auth.go)
	// Required by: All protected endpoints, request gate, render gate
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// OrgIDKey contains the organization ID the request was evaluated against
	// Set by: middleware.RequireGate after a successful permission check
	// Used by: Handlers that need the already-validated org scope
	// Type: int64
	OrgIDKey Key = "organization_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry scoped to the current request
	// Set by: middleware.AccessLog
	// Used by: Handlers that need structured logging with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithOrgID records the organization the request was authorized against
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetOrgID retrieves the authorized organization ID from context
func GetOrgID(ctx context.Context) (int64, bool) {
	orgID, ok := ctx.Value(OrgIDKey).(int64)
	return orgID, ok
}
