package orgs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/contextkeys"
)

type fakeService struct {
	Service // panic on anything not overridden

	createdOrg    *Organization
	addedMembers  []authz.Role
	roleErr       error
	updatedRole   *authz.Role
	removedUserID int64
}

func (f *fakeService) CreateOrganization(_ context.Context, org *Organization) error {
	org.ID = 1
	org.Slug = generateSlug(org.Name)
	f.createdOrg = org
	return nil
}

func (f *fakeService) AddMember(_ context.Context, orgID, userID int64, role authz.Role, invitedBy *int64) error {
	f.addedMembers = append(f.addedMembers, role)
	return nil
}

func (f *fakeService) GetMember(_ context.Context, orgID, userID int64) (*Member, error) {
	return &Member{OrganizationID: orgID, UserID: userID, Role: authz.RoleUser, Status: MembershipApproved}, nil
}

func (f *fakeService) UpdateMemberRole(_ context.Context, orgID, userID int64, role authz.Role) error {
	if f.roleErr != nil {
		return f.roleErr
	}
	f.updatedRole = &role
	return nil
}

func (f *fakeService) RemoveMember(_ context.Context, orgID, userID int64) error {
	f.removedUserID = userID
	return nil
}

type fakeInvalidator struct {
	invalidated []int64
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, userID int64) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&strings.Builder{})
	return logger
}

func asUser(r *http.Request, userID int64) *http.Request {
	ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{User: &auth.User{ID: userID, IsActive: true}})
	return r.WithContext(ctx)
}

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, nil, quietLogger())

	r := asUser(httptest.NewRequest("POST", "/organizations",
		strings.NewReader(`{"name":"Corner Cafe"}`)), 7)
	w := httptest.NewRecorder()
	h.CreateOrganization(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.createdOrg)
	assert.Equal(t, "corner-cafe", svc.createdOrg.Slug)
	require.Len(t, svc.addedMembers, 1)
	assert.Equal(t, authz.RoleOwner, svc.addedMembers[0])
}

func TestCreateOrganizationRequiresName(t *testing.T) {
	h := NewHandler(&fakeService{}, nil, quietLogger())

	r := asUser(httptest.NewRequest("POST", "/organizations", strings.NewReader(`{}`)), 7)
	w := httptest.NewRecorder()
	h.CreateOrganization(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMemberRoleInvalidatesCache(t *testing.T) {
	svc := &fakeService{}
	inv := &fakeInvalidator{}
	h := NewHandler(svc, inv, quietLogger())

	r := asUser(httptest.NewRequest("PUT", "/organizations/1/members/9/role",
		strings.NewReader(`{"role":"admin"}`)), 7)
	r = mux.SetURLVars(r, map[string]string{"org_id": "1", "user_id": "9"})
	w := httptest.NewRecorder()
	h.UpdateMemberRole(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.updatedRole)
	assert.Equal(t, authz.RoleAdmin, *svc.updatedRole)
	assert.Equal(t, []int64{9}, inv.invalidated)
}

func TestUpdateMemberRoleLastOwnerReturns422(t *testing.T) {
	svc := &fakeService{roleErr: errLastOwner()}
	h := NewHandler(svc, nil, quietLogger())

	r := asUser(httptest.NewRequest("PUT", "/organizations/1/members/9/role",
		strings.NewReader(`{"role":"admin"}`)), 7)
	r = mux.SetURLVars(r, map[string]string{"org_id": "1", "user_id": "9"})
	w := httptest.NewRecorder()
	h.UpdateMemberRole(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "last_owner")
}

func TestUpdateMemberRoleRejectsUnknownRole(t *testing.T) {
	h := NewHandler(&fakeService{}, nil, quietLogger())

	r := asUser(httptest.NewRequest("PUT", "/organizations/1/members/9/role",
		strings.NewReader(`{"role":"root"}`)), 7)
	r = mux.SetURLVars(r, map[string]string{"org_id": "1", "user_id": "9"})
	w := httptest.NewRecorder()
	h.UpdateMemberRole(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveMemberInvalidatesCache(t *testing.T) {
	svc := &fakeService{}
	inv := &fakeInvalidator{}
	h := NewHandler(svc, inv, quietLogger())

	r := asUser(httptest.NewRequest("DELETE", "/organizations/1/members/9", nil), 7)
	r = mux.SetURLVars(r, map[string]string{"org_id": "1", "user_id": "9"})
	w := httptest.NewRecorder()
	h.RemoveMember(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(9), svc.removedUserID)
	assert.Equal(t, []int64{9}, inv.invalidated)
}

func TestAcceptInvitationRequiresAuth(t *testing.T) {
	h := NewHandler(&fakeService{}, nil, quietLogger())

	r := httptest.NewRequest("POST", "/invitations/tok/accept", nil)
	r = mux.SetURLVars(r, map[string]string{"token": "tok"})
	w := httptest.NewRecorder()
	h.AcceptInvitation(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
