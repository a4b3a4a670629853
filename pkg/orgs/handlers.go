package orgs

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/httputil"
	"github.com/platemill/platemill/pkg/middleware"
)

// Invalidator drops cached permission decisions for a user. Role and
// status changes call it so stale allows do not outlive a demotion.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Handler serves organization and membership endpoints.
type Handler struct {
	service     Service
	invalidator Invalidator
	logger      *logrus.Logger
}

// NewHandler creates an organization handler. invalidator may be nil
// when no decision cache is configured.
func NewHandler(service Service, invalidator Invalidator, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{service: service, invalidator: invalidator, logger: logger}
}

// RegisterRoutes registers organization routes on the router. All routes
// assume the authentication middleware already ran; org-scoped routes
// are wrapped with the permission gate.
func (h *Handler) RegisterRoutes(r *mux.Router, gate *middleware.Gate) {
	r.HandleFunc("/organizations", h.CreateOrganization).Methods("POST")
	r.HandleFunc("/organizations", h.ListOrganizations).Methods("GET")

	r.Handle("/organizations/{org_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceOrganization, OrgVar: "org_id",
	})(http.HandlerFunc(h.GetOrganization))).Methods("GET")

	r.Handle("/organizations/{org_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionUpdate, Resource: authz.ResourceOrganization, OrgVar: "org_id",
	})(http.HandlerFunc(h.UpdateOrganization))).Methods("PUT")

	r.Handle("/organizations/{org_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionDelete, Resource: authz.ResourceOrganization, OrgVar: "org_id",
	})(http.HandlerFunc(h.DeleteOrganization))).Methods("DELETE")

	r.Handle("/organizations/{org_id}/members", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.ListMembers))).Methods("GET")

	r.Handle("/organizations/{org_id}/members", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageUsers, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.AddMember))).Methods("POST")

	r.Handle("/organizations/{org_id}/members/{user_id}/role", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageRoles, Resource: authz.ResourceRole, OrgVar: "org_id",
	})(http.HandlerFunc(h.UpdateMemberRole))).Methods("PUT")

	r.Handle("/organizations/{org_id}/members/{user_id}/status", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageUsers, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.SetMemberStatus))).Methods("PUT")

	r.Handle("/organizations/{org_id}/members/{user_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageUsers, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")

	r.Handle("/organizations/{org_id}/invitations", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageUsers, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.CreateInvitation))).Methods("POST")

	r.Handle("/organizations/{org_id}/invitations/{invitation_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionManageUsers, Resource: authz.ResourceUser, OrgVar: "org_id",
	})(http.HandlerFunc(h.RevokeInvitation))).Methods("DELETE")

	r.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")
}

// CreateOrganization creates an organization; the creator becomes its
// first owner.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	org := &Organization{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.service.CreateOrganization(r.Context(), org); err != nil {
		h.logger.WithError(err).Error("failed to create organization")
		httputil.WriteInternal(w)
		return
	}

	if err := h.service.AddMember(r.Context(), org.ID, authCtx.User.ID, authz.RoleOwner, nil); err != nil {
		h.logger.WithError(err).WithField("organization_id", org.ID).
			Error("failed to add creator as owner")
		httputil.WriteInternal(w)
		return
	}

	httputil.WriteCreated(w, org)
}

// ListOrganizations lists organizations the caller belongs to.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	orgList, err := h.service.ListOrganizations(r.Context(), authCtx.User.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list organizations")
		httputil.WriteInternal(w)
		return
	}
	httputil.WriteData(w, orgList)
}

// GetOrganization returns one organization.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get organization")
		return
	}
	httputil.WriteData(w, org)
}

// UpdateOrganization updates name and description.
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get organization")
		return
	}
	org.DisplayName = req.Name
	org.Description = req.Description

	if err := h.service.UpdateOrganization(r.Context(), org); err != nil {
		h.writeServiceError(w, err, "failed to update organization")
		return
	}
	httputil.WriteData(w, org)
}

// DeleteOrganization soft-deletes an organization.
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	if err := h.service.DeleteOrganization(r.Context(), orgID); err != nil {
		h.writeServiceError(w, err, "failed to delete organization")
		return
	}
	httputil.WriteNoContent(w)
}

// ListMembers lists an organization's members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list members")
		return
	}
	httputil.WriteData(w, members)
}

// AddMember adds an existing user to the organization.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		UserID int64      `json:"user_id"`
		Role   authz.Role `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "unknown role")
		return
	}

	actor := middleware.GetAuthContext(r).User.ID
	if err := h.service.AddMember(r.Context(), orgID, req.UserID, req.Role, &actor); err != nil {
		h.writeServiceError(w, err, "failed to add member")
		return
	}

	member, err := h.service.GetMember(r.Context(), orgID, req.UserID)
	if err != nil {
		h.writeServiceError(w, err, "failed to load member")
		return
	}
	httputil.WriteCreated(w, member)
}

// UpdateMemberRole changes a member's role within the organization.
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role authz.Role `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "unknown role")
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), orgID, userID, req.Role); err != nil {
		h.writeServiceError(w, err, "failed to update member role")
		return
	}

	h.invalidate(r.Context(), userID)

	member, err := h.service.GetMember(r.Context(), orgID, userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to load member")
		return
	}
	httputil.WriteData(w, member)
}

// SetMemberStatus suspends or re-approves a member.
func (h *Handler) SetMemberStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		Status MembershipStatus `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status != MembershipApproved && req.Status != MembershipSuspended {
		httputil.WriteBadRequest(w, "status must be approved or suspended")
		return
	}

	if err := h.service.SetMemberStatus(r.Context(), orgID, userID, req.Status); err != nil {
		h.writeServiceError(w, err, "failed to set member status")
		return
	}

	h.invalidate(r.Context(), userID)
	httputil.WriteNoContent(w)
}

// RemoveMember removes a user from the organization.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), orgID, userID); err != nil {
		h.writeServiceError(w, err, "failed to remove member")
		return
	}

	h.invalidate(r.Context(), userID)
	httputil.WriteNoContent(w)
}

// CreateInvitation issues an invitation to join the organization.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Email string     `json:"email"`
		Role  authz.Role `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "unknown role")
		return
	}

	actor := middleware.GetAuthContext(r).User.ID
	inv, err := h.service.CreateInvitation(r.Context(), orgID, req.Email, req.Role, actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to create invitation")
		return
	}
	httputil.WriteCreated(w, inv)
}

// RevokeInvitation withdraws a pending invitation.
func (h *Handler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.service.RevokeInvitation(r.Context(), orgID, invitationID); err != nil {
		h.writeServiceError(w, err, "failed to revoke invitation")
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation redeems an invitation token for the caller.
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	member, err := h.service.AcceptInvitation(r.Context(), token, authCtx.User.ID)
	if err != nil {
		h.writeServiceError(w, err, "failed to accept invitation")
		return
	}
	httputil.WriteData(w, member)
}

func (h *Handler) invalidate(ctx context.Context, userID int64) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.InvalidateUser(ctx, userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).
			Warn("failed to invalidate cached decisions")
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	var bre *authz.BusinessRuleError
	switch {
	case errors.Is(err, ErrOrgNotFound), errors.Is(err, ErrMemberNotFound),
		errors.Is(err, ErrInvitationNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrMemberExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrInvitationExpired):
		httputil.WriteErrorCode(w, http.StatusGone, "INVITATION_EXPIRED", err.Error())
	case errors.As(err, &bre):
		httputil.WriteBusinessRule(w, bre.Rule, bre.Message)
	case errors.Is(err, authz.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	default:
		h.logger.WithError(err).Error(logMsg)
		httputil.WriteInternal(w)
	}
}
