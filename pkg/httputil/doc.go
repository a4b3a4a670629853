// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Every JSON response is wrapped in the same envelope:
//
//	{"success": true,  "data": {...}}
//	{"success": false, "error": {"code": "FORBIDDEN", "message": "...", "details": {...}}}
//
// Refusals carry a machine-readable code so callers never have to parse
// messages: BAD_REQUEST (400), UNAUTHORIZED (401), FORBIDDEN (403),
// NOT_FOUND (404), CONFLICT (409), BUSINESS_RULE (422), INTERNAL (500).
//
// # Response Helpers
//
//	httputil.WriteData(w, resource)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteForbidden(w, "permission denied", "update", "product", "")
//	httputil.WriteBusinessRule(w, "last_owner", "organizations must keep at least one owner")
//
// # Request Parsing
//
//	var req CreateProductRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
package httputil
