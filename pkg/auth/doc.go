// Package auth provides the identity layer: user accounts, the
// organization-independent system-role flag, and opaque bearer tokens.
//
// Tokens are random 256-bit values issued once in plaintext and stored
// only as SHA-256 hashes. Impersonation sessions are ordinary tokens for
// the target user with ImpersonatedBy recording the operator, so audit
// trails can attribute actions to the real actor.
//
// Authorization decisions do not live here; see pkg/authz. This package
// only answers "who is calling", never "what may they do".
package auth
