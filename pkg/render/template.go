package render

import (
	"context"
	"html/template"

	"github.com/platemill/platemill/pkg/authz"
)

// Viewer identifies who a template is rendering for.
type Viewer struct {
	UserID         int64
	OrganizationID int64
	SystemRole     authz.SystemRole
}

// FuncMap returns template helpers bound to a viewer:
//
//	{{ if can "update" "product" }} <button>Edit</button> {{ end }}
//	{{ if canState "delete" "product" | eq "loading" }} <spinner/> {{ end }}
//
// Helpers fail closed; a broken evaluator hides controls rather than
// exposing them.
func (g *Gate) FuncMap(ctx context.Context, viewer Viewer) template.FuncMap {
	return template.FuncMap{
		"can": func(action, resource string) bool {
			return g.Can(ctx, authz.Check{
				UserID:         viewer.UserID,
				OrganizationID: viewer.OrganizationID,
				SystemRole:     viewer.SystemRole,
				Action:         authz.Action(action),
				Resource:       authz.Resource(resource),
			})
		},
		"canState": func(action, resource string) string {
			lookup := g.Start(ctx, authz.Check{
				UserID:         viewer.UserID,
				OrganizationID: viewer.OrganizationID,
				SystemRole:     viewer.SystemRole,
				Action:         authz.Action(action),
				Resource:       authz.Resource(resource),
			})
			return lookup.Wait(ctx).String()
		},
	}
}

// Prefetch starts lookups for several checks at once so templates can
// render loading placeholders while decisions settle. Keys are
// "resource:action" strings.
func (g *Gate) Prefetch(ctx context.Context, viewer Viewer, perms []authz.Permission) map[string]*Lookup {
	lookups := make(map[string]*Lookup, len(perms))
	for _, perm := range perms {
		lookups[perm.String()] = g.Start(ctx, authz.Check{
			UserID:         viewer.UserID,
			OrganizationID: viewer.OrganizationID,
			SystemRole:     viewer.SystemRole,
			Action:         perm.Action,
			Resource:       perm.Resource,
		})
	}
	return lookups
}
