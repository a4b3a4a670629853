// Package authz implements the authorization core for the Platemill
// back-office: a role-based, organization-scoped permission model plus a
// separate platform-operator (DEV) privilege tier.
//
// # Overview
//
// Every access question in the application reduces to one call:
//
//	decision, err := evaluator.Evaluate(ctx, authz.Check{
//		UserID:         actorID,
//		OrganizationID: orgID,
//		Action:         authz.ActionUpdate,
//		Resource:       authz.ResourceProduct,
//	})
//
// Both the HTTP request gate (pkg/middleware) and the render gate
// (pkg/render) consume the same Evaluator, so the API and the UI cannot
// drift apart in what they permit.
//
// # Roles
//
// Organization roles form a total order by privilege:
//
//	RoleUser < RoleManager < RoleAdmin < RoleOwner
//
// Comparisons go through Role.Rank and Role.HasAtLeast; nothing relies on
// declaration order. SystemRoleDev is orthogonal and organization
// independent: it marks platform operators and is consulted only by the
// DevPolicy.
//
// # Permission table
//
// DefaultTable maps each role to its (resource, action) set. Higher roles
// extend lower ones, with a deliberate asymmetry: catalog writes are
// delegated down to managers while DELETE stays with admins and owners,
// and organization deletion plus billing management are owner-only. The
// table is immutable after construction and injected into the Evaluator,
// so tests can swap in alternates without touching shared state.
//
// # Evaluation
//
// Evaluate resolves the actor's membership, consults the table, then
// applies optional conditions (resource ownership, same-organization).
// Owners bypass conditions inside their own organization. Denial is a
// value (Decision{Allowed: false}), never an error; errors are reserved
// for malformed input (ErrInvalidInput) and resolver failures, which gates
// surface as 400 and 500 respectively rather than 403.
//
// # Operator capabilities
//
// Actions governed by the DevPolicy (view_internal_data, manage_stripe,
// view_logs, debug_system, impersonate) are decided entirely by that
// policy: DEV users hold them in every organization, everyone else in
// none. Impersonating another DEV or any ADMIN is always denied, and a DEV
// user may never grant the DEV flag to themself; those rules surface as
// BusinessRuleErrors (HTTP 422), distinct from plain denial.
//
// # Caching
//
// CachedEvaluator adds a TTL-bounded decision cache (in-process LRU or
// Redis). Conditional checks are never cached. Membership mutations call
// InvalidateUser so a demotion takes effect before the TTL expires.
package authz
