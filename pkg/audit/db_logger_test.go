package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger, mock
}

func TestDBLoggerLog(t *testing.T) {
	logger, mock := newTestDBLogger(t)
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	userID := int64(7)
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeAuthzAccessDenied,
		Status:    EventStatusDenied,
		UserID:    &userID,
		Resource:  "product",
		Action:    "delete",
		Metadata:  map[string]interface{}{"reason": "insufficient role"},
	}
	err := logger.Log(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, int64(42), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLoggerSearch(t *testing.T) {
	logger, mock := newTestDBLogger(t)
	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status", "user_id", "username", "organization_id",
		"resource", "resource_id", "action", "ip_address", "request_id", "method", "path",
		"message", "metadata",
	}).AddRow(1, time.Now(), "authz.access_denied", "denied", 7, "casey", 1,
		"product", "9", "delete", "203.0.113.7", "req-1", "DELETE", "/orgs/1/products/9",
		"insufficient role", []byte(`{"k":"v"}`))
	mock.ExpectQuery("SELECT id, timestamp, event_type").
		WillReturnRows(rows)

	userID := int64(7)
	events, err := logger.Search(context.Background(), SearchFilter{UserID: &userID, Limit: 10})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAuthzAccessDenied, events[0].EventType)
	assert.Equal(t, "casey", events[0].Username)
	assert.Equal(t, "v", events[0].Metadata["k"])
}

func TestDBLoggerCleanupBefore(t *testing.T) {
	logger, mock := newTestDBLogger(t)
	cutoff := time.Now().AddDate(0, 0, -90)
	mock.ExpectExec("DELETE FROM audit_logs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := logger.CleanupBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(12), removed)
}
