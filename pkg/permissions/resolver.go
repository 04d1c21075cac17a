// Package permissions computes a user's effective authorization set.
//
// The effective set is the union over all of the user's active roles:
// a permission granted through two roles is a single fact, and duplicates
// collapse silently. A user with no active roles resolves to two empty
// sets, never an error.
package permissions

import "context"

// Grants is the resolved authorization set for one user.
type Grants struct {
	RoleKeys map[string]struct{}
	Perms    map[string]struct{}
}

// NewGrants builds a Grants from slices, deduplicating as it goes.
func NewGrants(roleKeys, perms []string) *Grants {
	g := &Grants{
		RoleKeys: make(map[string]struct{}, len(roleKeys)),
		Perms:    make(map[string]struct{}, len(perms)),
	}
	for _, r := range roleKeys {
		g.RoleKeys[r] = struct{}{}
	}
	for _, p := range perms {
		if p != "" {
			g.Perms[p] = struct{}{}
		}
	}
	return g
}

// Roles returns the role keys as a slice copy.
func (g *Grants) Roles() []string {
	out := make([]string, 0, len(g.RoleKeys))
	for r := range g.RoleKeys {
		out = append(out, r)
	}
	return out
}

// Permissions returns the permission strings as a slice copy.
func (g *Grants) Permissions() []string {
	out := make([]string, 0, len(g.Perms))
	for p := range g.Perms {
		out = append(out, p)
	}
	return out
}

// Resolver computes the effective role-key and permission sets for a user
// identifier.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (*Grants, error)
}

// Invalidator is implemented by resolvers that cache results. Any role or
// permission mutation must invalidate the affected user's entry.
type Invalidator interface {
	Invalidate(userID int64)
}
