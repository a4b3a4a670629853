package authz

import (
	"context"
	"fmt"
)

// Evaluator is the single decision function for the whole application.
// Both the request gate and the render gate call the same Evaluator so the
// API and the UI can never disagree about access.
//
// Evaluation is stateless and side-effect-free apart from the resolver's
// storage read; a single Evaluator is safe for concurrent use.
type Evaluator struct {
	resolver MembershipResolver
	table    *Table
	dev      *DevPolicy
}

// NewEvaluator builds an Evaluator. A nil table or dev policy falls back
// to the built-in defaults; tests inject alternates.
func NewEvaluator(resolver MembershipResolver, table *Table, dev *DevPolicy) *Evaluator {
	if table == nil {
		table = DefaultTable()
	}
	if dev == nil {
		dev = NewDevPolicy()
	}
	return &Evaluator{resolver: resolver, table: table, dev: dev}
}

// DevPolicy returns the operator policy the evaluator consults.
func (e *Evaluator) DevPolicy() *DevPolicy {
	return e.dev
}

// OperatorGated reports whether the action is decided by the DEV policy
// rather than the organization table. Such checks need no organization id.
func (e *Evaluator) OperatorGated(action Action) bool {
	return e.dev.Governs(action)
}

// Evaluate produces an allow/deny decision for one check.
//
// Denial is returned as a Decision, never as an error. An error means the
// check could not be evaluated at all: malformed input (wraps
// ErrInvalidInput) or a resolver/storage failure. Callers must not
// translate errors into denials.
func (e *Evaluator) Evaluate(ctx context.Context, check Check) (Decision, error) {
	if check.UserID == 0 {
		return Decision{}, fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	if check.Action == "" || check.Resource == "" {
		return Decision{}, fmt.Errorf("%w: missing action or resource", ErrInvalidInput)
	}

	// Operator-gated capabilities bypass organization membership entirely.
	if e.dev.Governs(check.Action) {
		return e.dev.Decide(check), nil
	}

	if check.OrganizationID == 0 {
		return Decision{}, fmt.Errorf("%w: missing organization id", ErrInvalidInput)
	}

	membership, err := e.resolver.Resolve(ctx, check.UserID, check.OrganizationID)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: resolve membership: %w", err)
	}
	if membership == nil {
		return Deny(ReasonNotAMember), nil
	}

	if !e.table.Allows(membership.Role, check.Permission()) {
		return Deny(ReasonInsufficientRole), nil
	}

	if cond := check.Condition; cond != nil {
		// Owners are always trusted within their own organization.
		if membership.Role == RoleOwner {
			return Allow(), nil
		}
		if cond.RequireOwnership && cond.ResourceOwnerID != check.UserID {
			return Deny(ReasonNotResourceOwner), nil
		}
		if cond.RequireSameOrganization && cond.TargetOrganizationID != check.OrganizationID {
			return Deny(ReasonCrossOrganization), nil
		}
	}

	return Allow(), nil
}

// HasAny reports whether at least one of the checks is allowed. It exits
// on the first allow; individual denials carry no side effects between
// checks.
func (e *Evaluator) HasAny(ctx context.Context, checks []Check) (bool, error) {
	for _, check := range checks {
		decision, err := e.Evaluate(ctx, check)
		if err != nil {
			return false, err
		}
		if decision.Allowed {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether every check is allowed, exiting on the first deny.
func (e *Evaluator) HasAll(ctx context.Context, checks []Check) (bool, error) {
	for _, check := range checks {
		decision, err := e.Evaluate(ctx, check)
		if err != nil {
			return false, err
		}
		if !decision.Allowed {
			return false, nil
		}
	}
	return true, nil
}
