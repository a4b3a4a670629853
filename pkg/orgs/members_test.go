package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemill/platemill/pkg/authz"
)

func memberRow(userID int64, role authz.Role) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "user_id", "role", "status", "invited_by",
		"joined_at", "created_at", "username", "email",
	}).AddRow(userID, 1, userID, role, "approved", nil, now, now, "casey", "casey@example.com")
}

func TestGetMember(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("FROM memberships m").
		WithArgs(int64(1), int64(7)).
		WillReturnRows(memberRow(7, authz.RoleManager))

	member, err := svc.GetMember(context.Background(), 1, 7)

	require.NoError(t, err)
	assert.Equal(t, authz.RoleManager, member.Role)
	assert.Equal(t, "casey", member.Username)
}

func TestGetMemberNotFound(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("FROM memberships m").
		WithArgs(int64(1), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "user_id", "role", "status", "invited_by",
			"joined_at", "created_at", "username", "email",
		}))

	_, err := svc.GetMember(context.Background(), 1, 7)

	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestAddMember(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO memberships").
		WithArgs(int64(1), int64(7), authz.RoleUser, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.AddMember(context.Background(), 1, 7, authz.RoleUser, nil)

	assert.NoError(t, err)
}

func TestAddMemberAlreadyExists(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO memberships").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.AddMember(context.Background(), 1, 7, authz.RoleUser, nil)

	assert.ErrorIs(t, err, ErrMemberExists)
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AddMember(context.Background(), 1, 7, authz.Role("superuser"), nil)

	assert.ErrorIs(t, err, authz.ErrInvalidInput)
}

func expectOwnerGuard(mock sqlmock.Sqlmock, otherOwners int, targetIsOwner bool) {
	rows := sqlmock.NewRows([]string{"user_id"})
	for i := 0; i < otherOwners; i++ {
		rows.AddRow(int64(100 + i))
	}
	mock.ExpectQuery("SELECT user_id").WillReturnRows(rows)
	mock.ExpectQuery("SELECT role = 'owner'").
		WillReturnRows(sqlmock.NewRows([]string{"is_owner"}).AddRow(targetIsOwner))
}

func TestUpdateMemberRole(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	expectOwnerGuard(mock, 1, true)
	mock.ExpectExec("UPDATE memberships SET role").
		WithArgs(authz.RoleAdmin, int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.UpdateMemberRole(context.Background(), 1, 7, authz.RoleAdmin)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMemberRoleLastOwner(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	expectOwnerGuard(mock, 0, true)
	mock.ExpectRollback()

	err := svc.UpdateMemberRole(context.Background(), 1, 7, authz.RoleAdmin)

	require.Error(t, err)
	assert.True(t, authz.IsBusinessRule(err))
	assert.True(t, IsLastOwner(err))
}

func TestUpdateMemberRolePromotionSkipsOwnerGuard(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE memberships SET role").
		WithArgs(authz.RoleOwner, int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.UpdateMemberRole(context.Background(), 1, 7, authz.RoleOwner)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberLastOwner(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	expectOwnerGuard(mock, 0, true)
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), 1, 7)

	assert.True(t, IsLastOwner(err))
}

func TestRemoveMemberNonOwner(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	expectOwnerGuard(mock, 0, false)
	mock.ExpectExec("DELETE FROM memberships").
		WithArgs(int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.RemoveMember(context.Background(), 1, 7)

	assert.NoError(t, err)
}

func TestSuspendLastOwner(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	expectOwnerGuard(mock, 0, true)
	mock.ExpectRollback()

	err := svc.SetMemberStatus(context.Background(), 1, 7, MembershipSuspended)

	assert.True(t, IsLastOwner(err))
}

func TestReapproveSkipsOwnerGuard(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE memberships SET status").
		WithArgs(MembershipApproved, int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.SetMemberStatus(context.Background(), 1, 7, MembershipApproved)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHighestRole(t *testing.T) {
	svc, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"role"}).
		AddRow("user").
		AddRow("admin").
		AddRow("manager")
	mock.ExpectQuery(`SELECT role FROM memberships WHERE user_id`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	role, err := svc.HighestRole(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHighestRoleNoMemberships(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT role FROM memberships WHERE user_id`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	role, err := svc.HighestRole(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, authz.Role(""), role)
}
