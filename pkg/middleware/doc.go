// Package middleware provides HTTP middleware for authentication,
// permission enforcement, request identification, access logging, and
// rate limiting.
//
// # Request pipeline
//
// The standard chain, outermost first:
//
//	RequestID -> AccessLog -> Recover -> RateLimit -> Authenticate -> Gate -> handler
//
// # Permission gate
//
// Routes declare the permission they need; the gate evaluates it before
// the handler runs:
//
//	gate := middleware.NewGate(evaluator, logger)
//	r.Handle("/orgs/{org_id}/products", gate.Require(middleware.GateConfig{
//		Action:   authz.ActionCreate,
//		Resource: authz.ResourceProduct,
//		OrgVar:   "org_id",
//	})(createProduct)).Methods("POST")
//
// Refusals follow a strict taxonomy: 401 when no authenticated user is
// present, 400 when the organization scope is missing or malformed, 403
// when the check is denied, 422 when a business rule refuses the
// operation, and 500 when evaluation itself fails. A 403 body names the
// required action and resource so clients can explain the denial.
//
// # Related Packages
//
//   - pkg/authz: the permission evaluator the gate consults
//   - pkg/httputil: the response envelope the refusals use
package middleware
