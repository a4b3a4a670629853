package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate EventType = "auth.token_create"
	EventTypeAuthTokenRevoke EventType = "auth.token_revoke"

	// Authorization events
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"
	EventTypeAuthzSystemRoleChange EventType = "authz.system_role_change"
	EventTypeAuthzImpersonation    EventType = "authz.impersonation_grant"

	// Organization and membership events
	EventTypeOrgCreate        EventType = "org.create"
	EventTypeOrgDelete        EventType = "org.delete"
	EventTypeMemberAdd        EventType = "member.add"
	EventTypeMemberRemove     EventType = "member.remove"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberSuspend    EventType = "member.suspend"

	// Catalog mutation events
	EventTypeCatalogCreate  EventType = "catalog.create"
	EventTypeCatalogUpdate  EventType = "catalog.update"
	EventTypeCatalogDelete  EventType = "catalog.delete"
	EventTypeCatalogArchive EventType = "catalog.archive"
	EventTypeCatalogRestore EventType = "catalog.restore"

	// Billing events
	EventTypeBillingChange EventType = "billing.change"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	Username       string `json:"username,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// What the actor touched
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Action     string `json:"action,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID         *int64
	OrganizationID *int64

	EventTypes []EventType
	Status     *EventStatus

	Limit  int
	Offset int
}
