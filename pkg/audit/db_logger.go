package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		organization_id BIGINT,
		resource VARCHAR(50),
		resource_id VARCHAR(255),
		action VARCHAR(50),
		ip_address VARCHAR(45),
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_organization_id ON audit_logs(organization_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, username, organization_id,
			resource, resource_id, action,
			ip_address, request_id, method, path,
			message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Username, event.OrganizationID,
		event.Resource, event.ResourceID, event.Action,
		event.IPAddress, event.RequestID, event.Method, event.Path,
		event.Message, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search queries audit logs matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= "+arg(*filter.EndTime))
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = "+arg(*filter.UserID))
	}
	if filter.OrganizationID != nil {
		conditions = append(conditions, "organization_id = "+arg(*filter.OrganizationID))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		conditions = append(conditions, "event_type = ANY("+arg(pq.Array(types))+")")
	}

	query := `
		SELECT id, timestamp, event_type, status, user_id, username, organization_id,
		       resource, resource_id, action, ip_address, request_id, method, path,
		       message, metadata
		FROM audit_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var username, resource, resourceID, action sql.NullString
		var ipAddress, requestID, method, path, message sql.NullString
		var metadataJSON []byte
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.UserID, &username, &event.OrganizationID,
			&resource, &resourceID, &action,
			&ipAddress, &requestID, &method, &path,
			&message, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.Username = username.String
		event.Resource = resource.String
		event.ResourceID = resourceID.String
		event.Action = action.String
		event.IPAddress = ipAddress.String
		event.RequestID = requestID.String
		event.Method = method.String
		event.Path = path.String
		event.Message = message.String
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CleanupBefore deletes audit logs older than the cutoff. Returns the
// number deleted.
func (l *DBLogger) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the caller owns the database handle.
func (l *DBLogger) Close() error {
	return nil
}
