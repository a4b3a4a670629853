// Package accounts serves the identity surface: the current-user
// endpoint, personal token issuance and revocation, system-role
// management, and operator impersonation. Organization-scoped
// authorization lives behind the request gate; the endpoints here are
// either self-service or governed by the operator rules in the dev
// policy.
package accounts
