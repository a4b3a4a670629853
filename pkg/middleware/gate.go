package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/contextkeys"
	"github.com/platemill/platemill/pkg/httputil"
)

// maxGateBodyPeek bounds how much of a request body the gate will read
// while looking for an organization id.
const maxGateBodyPeek = 1 << 20

// Evaluator is the slice of the permission evaluator the gate needs.
// Both authz.Evaluator and authz.CachedEvaluator satisfy it.
type Evaluator interface {
	Evaluate(ctx context.Context, check authz.Check) (authz.Decision, error)
	OperatorGated(action authz.Action) bool
}

// DecisionHook observes every gate outcome. Used to wire audit logging
// and metrics without coupling the gate to either.
type DecisionHook func(r *http.Request, check authz.Check, decision authz.Decision)

// Gate enforces permission checks in front of HTTP handlers. Every
// refusal uses the standard envelope: 401 for missing identity, 400 for
// malformed scope, 403 for denied checks, 422 for business rule
// violations, 500 for evaluator failure.
type Gate struct {
	evaluator Evaluator
	logger    *logrus.Logger
	onDecide  DecisionHook
}

// NewGate creates a request gate around the evaluator.
func NewGate(evaluator Evaluator, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gate{evaluator: evaluator, logger: logger}
}

// OnDecision registers a hook invoked after every evaluation.
func (g *Gate) OnDecision(hook DecisionHook) {
	g.onDecide = hook
}

// GateConfig describes the permission a route requires.
type GateConfig struct {
	Action   authz.Action
	Resource authz.Resource

	// OrgVar is the mux path variable holding the organization id.
	// When empty the gate falls back to the organization_id query
	// parameter and then to an organization_id field in a JSON body.
	OrgVar string

	// ResourceIDVar is the mux path variable holding the resource id,
	// echoed back in denial details when present.
	ResourceIDVar string

	// Condition derives contextual requirements from the request, for
	// example an ownership requirement loaded from storage. A nil
	// return means the table lookup alone decides.
	Condition func(r *http.Request) (*authz.Condition, error)
}

// Require returns middleware enforcing cfg before the wrapped handler runs.
func (g *Gate) Require(cfg GateConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil || authCtx.User == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			check := authz.Check{
				UserID:     authCtx.User.ID,
				Action:     cfg.Action,
				Resource:   cfg.Resource,
				SystemRole: authCtx.User.SystemRole,
			}
			if cfg.ResourceIDVar != "" {
				check.ResourceID = mux.Vars(r)[cfg.ResourceIDVar]
			}

			// Operator-gated actions are organization-independent; the
			// evaluator decides them from the system role alone.
			if !g.evaluator.OperatorGated(cfg.Action) {
				orgID, err := extractOrgID(r, cfg.OrgVar)
				if err != nil {
					httputil.WriteBadRequest(w, err.Error())
					return
				}
				check.OrganizationID = orgID
			}

			if cfg.Condition != nil {
				cond, err := cfg.Condition(r)
				if err != nil {
					g.logger.WithError(err).WithFields(logrus.Fields{
						"action":   cfg.Action,
						"resource": cfg.Resource,
					}).Error("gate condition lookup failed")
					httputil.WriteInternal(w)
					return
				}
				check.Condition = cond
			}

			decision, err := g.evaluator.Evaluate(r.Context(), check)
			if err != nil {
				g.refuse(w, r, check, err)
				return
			}

			if g.onDecide != nil {
				g.onDecide(r, check, decision)
			}

			if !decision.Allowed {
				g.logger.WithFields(logrus.Fields{
					"user_id":         check.UserID,
					"organization_id": check.OrganizationID,
					"action":          check.Action,
					"resource":        check.Resource,
					"reason":          decision.Reason,
					"request_id":      contextkeys.GetRequestID(r.Context()),
				}).Warn("permission denied")
				httputil.WriteForbidden(w, "permission denied",
					string(check.Action), string(check.Resource), check.ResourceID)
				return
			}

			ctx := contextkeys.WithOrgID(r.Context(), check.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) refuse(w http.ResponseWriter, r *http.Request, check authz.Check, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		httputil.WriteBadRequest(w, "invalid permission check")
	case authz.IsBusinessRule(err):
		var bre *authz.BusinessRuleError
		errors.As(err, &bre)
		httputil.WriteBusinessRule(w, bre.Rule, bre.Message)
	default:
		g.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  check.UserID,
			"action":   check.Action,
			"resource": check.Resource,
		}).Error("permission evaluation failed")
		httputil.WriteInternal(w)
	}
}

// extractOrgID finds the organization scope of a request. Path variables
// win, then the organization_id query parameter, then an organization_id
// field in a JSON body. The body is restored so handlers can re-read it.
func extractOrgID(r *http.Request, orgVar string) (int64, error) {
	if orgVar != "" {
		if raw, ok := mux.Vars(r)[orgVar]; ok && raw != "" {
			return parseOrgID(raw)
		}
	}

	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		return parseOrgID(raw)
	}

	if r.Body != nil && r.Body != http.NoBody {
		buf, err := io.ReadAll(io.LimitReader(r.Body, maxGateBodyPeek))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(buf))
		if err != nil {
			return 0, errors.New("failed to read request body")
		}

		var body struct {
			OrganizationID int64 `json:"organization_id"`
		}
		if err := json.Unmarshal(buf, &body); err == nil && body.OrganizationID > 0 {
			return body.OrganizationID, nil
		}
	}

	return 0, errors.New("organization_id is required")
}

func parseOrgID(raw string) (int64, error) {
	orgID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orgID <= 0 {
		return 0, errors.New("organization_id must be a positive integer")
	}
	return orgID, nil
}
