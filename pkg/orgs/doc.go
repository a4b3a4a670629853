// Package orgs manages organizations, memberships, and invitations.
//
// # Overview
//
// Organizations are the tenancy boundary: every catalog record and every
// membership belongs to exactly one. A membership carries the member's
// role (user, manager, admin, owner) and a status; only approved
// memberships grant access. The package's Resolver feeds memberships to
// the permission evaluator, which is why suspended and pending members
// resolve to nothing rather than to a reduced role.
//
// # Invariants
//
//   - An organization always keeps at least one approved owner. Demoting,
//     suspending, or removing the final owner fails with the last_owner
//     business rule (HTTP 422), checked inside the same transaction as
//     the mutation.
//   - Role and status changes invalidate the member's cached permission
//     decisions so a demotion takes effect immediately.
//
// # Invitations
//
// Invitations are token-addressed offers with a 7 day expiry. Accepting
// one creates an approved membership with the invited role; the janitor
// process deletes expired unaccepted invitations.
package orgs
