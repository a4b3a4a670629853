// Package render decides whether UI elements should be shown to a user.
//
// # Overview
//
// Server-rendered pages ask the same questions as request enforcement
// ("may this user delete products?") but with different failure
// semantics: a render check that cannot complete hides the control
// instead of failing the page. The gate exposes three states, and the
// loading state is never treated as allowed.
//
//	lookup := gate.Start(ctx, check)
//	switch lookup.State() {
//	case render.StateLoading: // skeleton/spinner
//	case render.StateAllowed: // render the control
//	case render.StateDenied:  // omit it
//	}
//
// Render gating is a UX affordance only. Every mutation is still
// enforced at the request gate; hiding a button is not a security
// boundary.
//
// # Templates
//
// FuncMap provides a "can" helper for html/template:
//
//	{{ if can "archive" "product" }}<button>Archive</button>{{ end }}
package render
