package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NewEvent creates an event with the timestamp and request context
// filled in. r may be nil for events outside an HTTP request.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
		event.IPAddress = clientIP(r)
	}
	return event
}

// RecordDenied writes an access-denied event for a refused permission
// check.
func RecordDenied(ctx context.Context, logger Logger, r *http.Request, check authz.Check, decision authz.Decision) error {
	event := NewEvent(ctx, r, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.UserID = &check.UserID
	if check.OrganizationID != 0 {
		event.OrganizationID = &check.OrganizationID
	}
	event.Resource = string(check.Resource)
	event.ResourceID = check.ResourceID
	event.Action = string(check.Action)
	event.Message = decision.Reason
	return logger.Log(ctx, event)
}

// RecordRoleChange writes a role-change event.
func RecordRoleChange(ctx context.Context, logger Logger, actorID, targetID, orgID int64, from, to authz.Role) error {
	event := NewEvent(ctx, nil, EventTypeMemberRoleChange, EventStatusSuccess)
	event.UserID = &actorID
	event.OrganizationID = &orgID
	event.Resource = "role"
	event.Metadata = map[string]interface{}{
		"target_user_id": targetID,
		"from":           string(from),
		"to":             string(to),
	}
	return logger.Log(ctx, event)
}

// RecordSystemRoleChange writes a system-role grant or revocation event.
func RecordSystemRoleChange(ctx context.Context, logger Logger, actorID, targetID int64, to authz.SystemRole) error {
	event := NewEvent(ctx, nil, EventTypeAuthzSystemRoleChange, EventStatusSuccess)
	event.UserID = &actorID
	event.Resource = "user"
	event.Metadata = map[string]interface{}{
		"target_user_id": targetID,
		"system_role":    string(to),
	}
	return logger.Log(ctx, event)
}

// RecordImpersonation writes an impersonation-grant event.
func RecordImpersonation(ctx context.Context, logger Logger, operatorID, targetID int64) error {
	event := NewEvent(ctx, nil, EventTypeAuthzImpersonation, EventStatusSuccess)
	event.UserID = &operatorID
	event.Resource = "user"
	event.Metadata = map[string]interface{}{
		"target_user_id": targetID,
	}
	return logger.Log(ctx, event)
}

// NopLogger discards every event. Used when auditing is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
