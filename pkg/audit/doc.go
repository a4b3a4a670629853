// Package audit records security-relevant events: denied permission
// checks, role changes, impersonation grants, membership and catalog
// mutations.
//
// # Overview
//
// Events share one schema regardless of destination. Two destinations
// ship: PostgreSQL (queryable via Search, pruned by the janitor) and
// NDJSON files with size-based rotation. MultiLogger fans out to both.
//
//	logger, _ := audit.NewDBLogger(db)
//	audit.RecordDenied(ctx, logger, r, check, decision)
//
// The request gate feeds denials in automatically via its decision
// hook; see cmd/platemill.
package audit
