package accounts

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/audit"
	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/httputil"
	"github.com/platemill/platemill/pkg/middleware"
)

// impersonationTTL bounds how long an impersonation token stays valid.
const impersonationTTL = time.Hour

// maxTokenTTL caps user-requested token lifetimes.
const maxTokenTTL = 365 * 24 * time.Hour

// Directory is the slice of auth.UserStore the handler needs.
type Directory interface {
	GetUser(ctx context.Context, userID int64) (*auth.User, error)
	SetSystemRole(ctx context.Context, actor *auth.User, targetID int64, role authz.SystemRole) error
}

// TokenService issues and revokes bearer tokens. auth.TokenManager
// satisfies it.
type TokenService interface {
	CreateToken(ctx context.Context, userID int64, name string, impersonatedBy *int64, expiresAt *time.Time) (*auth.Token, string, error)
	ListTokens(ctx context.Context, userID int64) ([]*auth.Token, error)
	RevokeUserToken(ctx context.Context, userID, tokenID int64) error
}

// RoleFinder reports the most privileged approved role a user holds
// anywhere. orgs.PostgresService satisfies it.
type RoleFinder interface {
	HighestRole(ctx context.Context, userID int64) (authz.Role, error)
}

// Handler serves identity, token, and operator endpoints.
type Handler struct {
	directory Directory
	tokens    TokenService
	roles     RoleFinder
	dev       *authz.DevPolicy
	auditor   audit.Logger
	logger    *logrus.Logger
}

// NewHandler creates the accounts handler. dev nil uses the built-in
// policy; auditor nil disables audit trail writes.
func NewHandler(directory Directory, tokens TokenService, roles RoleFinder, dev *authz.DevPolicy, auditor audit.Logger, logger *logrus.Logger) *Handler {
	if dev == nil {
		dev = authz.NewDevPolicy()
	}
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		directory: directory,
		tokens:    tokens,
		roles:     roles,
		dev:       dev,
		auditor:   auditor,
		logger:    logger,
	}
}

// RegisterRoutes registers identity and operator routes. All routes
// assume the authentication middleware already ran; impersonation is
// additionally wrapped with the permission gate, which resolves it as an
// operator-gated action with no organization scope.
func (h *Handler) RegisterRoutes(r *mux.Router, gate *middleware.Gate) {
	r.HandleFunc("/me", h.Me).Methods("GET")

	r.HandleFunc("/tokens", h.CreateToken).Methods("POST")
	r.HandleFunc("/tokens", h.ListTokens).Methods("GET")
	r.HandleFunc("/tokens/{token_id}", h.RevokeToken).Methods("DELETE")

	r.HandleFunc("/users/{user_id}/system-role", h.SetSystemRole).Methods("PUT")

	r.Handle("/users/{user_id}/impersonate", gate.Require(middleware.GateConfig{
		Action: authz.ActionImpersonate, Resource: authz.ResourceUser, ResourceIDVar: "user_id",
	})(http.HandlerFunc(h.Impersonate))).Methods("POST")
}

// Me returns the caller's account and, when the session is an
// impersonation, the operator behind it.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	resp := struct {
		User           *auth.User `json:"user"`
		ImpersonatedBy *int64     `json:"impersonated_by,omitempty"`
	}{User: authCtx.User}
	if authCtx.Token != nil {
		resp.ImpersonatedBy = authCtx.Token.ImpersonatedBy
	}
	httputil.WriteData(w, resp)
}

// CreateToken issues a personal token for the caller. The plaintext is
// included in this response and never stored or shown again.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Name      string `json:"name"`
		ExpiresIn string `json:"expires_in,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		ttl, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || ttl <= 0 {
			httputil.WriteBadRequest(w, "expires_in must be a positive duration")
			return
		}
		if ttl > maxTokenTTL {
			httputil.WriteBadRequest(w, "expires_in exceeds the maximum token lifetime")
			return
		}
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), authCtx.User.ID, req.Name, nil, expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("failed to create token")
		httputil.WriteInternal(w)
		return
	}

	httputil.WriteCreated(w, tokenResponse{Token: token, Plaintext: plaintext})
}

// tokenResponse pairs a stored token with its one-time plaintext.
type tokenResponse struct {
	Token     *auth.Token `json:"token"`
	Plaintext string      `json:"plaintext"`
}

// ListTokens lists the caller's active tokens.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tokens, err := h.tokens.ListTokens(r.Context(), authCtx.User.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list tokens")
		httputil.WriteInternal(w)
		return
	}
	httputil.WriteData(w, tokens)
}

// RevokeToken revokes one of the caller's tokens. Tokens owned by other
// users look identical to missing ones.
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}

	err := h.tokens.RevokeUserToken(r.Context(), authCtx.User.ID, tokenID)
	if errors.Is(err, auth.ErrTokenInvalid) {
		httputil.WriteNotFound(w, "token not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to revoke token")
		httputil.WriteInternal(w)
		return
	}
	httputil.WriteNoContent(w)
}

// SetSystemRole grants or clears a user's system role. The store enforces
// the operator rules, so violations surface here as business rule
// refusals rather than permission denials.
func (h *Handler) SetSystemRole(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		SystemRole authz.SystemRole `json:"system_role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SystemRole != authz.SystemRoleNone && req.SystemRole != authz.SystemRoleDev {
		httputil.WriteBadRequest(w, "unknown system role")
		return
	}

	if err := h.directory.SetSystemRole(r.Context(), authCtx.User, targetID, req.SystemRole); err != nil {
		h.writeUserError(w, err, "failed to set system role")
		return
	}

	if err := audit.RecordSystemRoleChange(r.Context(), h.auditor, authCtx.User.ID, targetID, req.SystemRole); err != nil {
		h.logger.WithError(err).WithField("target_id", targetID).
			Warn("failed to record system role change audit event")
	}

	user, err := h.directory.GetUser(r.Context(), targetID)
	if err != nil {
		h.writeUserError(w, err, "failed to load user")
		return
	}
	httputil.WriteData(w, user)
}

// Impersonate mints a short-lived token acting as the target user, with
// the operator recorded on the token. The gate already verified the
// caller holds the impersonation permission; the dev policy still vets
// the specific target, since privileged targets stay off limits even to
// operators.
func (h *Handler) Impersonate(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	target, err := h.directory.GetUser(r.Context(), targetID)
	if errors.Is(err, auth.ErrUserNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load impersonation target")
		httputil.WriteInternal(w)
		return
	}

	targetRole, err := h.roles.HighestRole(r.Context(), targetID)
	if err != nil {
		h.logger.WithError(err).Error("failed to resolve target role")
		httputil.WriteInternal(w)
		return
	}

	decision := h.dev.CanImpersonate(authCtx.User.SystemRole, targetRole, target.SystemRole)
	if !decision.Allowed {
		// A caller without operator status is a plain permission denial;
		// a privileged target is a business rule violation.
		if decision.Reason == authz.ReasonNotOperator {
			httputil.WriteForbidden(w, decision.Reason,
				string(authz.ActionImpersonate), string(authz.ResourceUser), "")
			return
		}
		httputil.WriteBusinessRule(w, "impersonation_target", decision.Reason)
		return
	}

	expiresAt := time.Now().Add(impersonationTTL)
	operatorID := authCtx.User.ID
	token, plaintext, err := h.tokens.CreateToken(r.Context(), targetID, "impersonation", &operatorID, &expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("failed to create impersonation token")
		httputil.WriteInternal(w)
		return
	}

	if err := audit.RecordImpersonation(r.Context(), h.auditor, operatorID, targetID); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"operator_id": operatorID,
			"target_id":   targetID,
		}).Warn("failed to record impersonation audit event")
	}

	httputil.WriteCreated(w, tokenResponse{Token: token, Plaintext: plaintext})
}

func (h *Handler) writeUserError(w http.ResponseWriter, err error, logMsg string) {
	var bre *authz.BusinessRuleError
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
	case errors.As(err, &bre):
		httputil.WriteBusinessRule(w, bre.Rule, bre.Message)
	case errors.Is(err, authz.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	default:
		h.logger.WithError(err).Error(logMsg)
		httputil.WriteInternal(w)
	}
}
