package permissions

import (
	"context"
	"database/sql"
	"fmt"
)

// Status value marking roles and menus as enabled in the relational model.
const statusEnabled = 1

// SQLResolver aggregates grants from the relational mapping
// user -> role -> menu. Only enabled roles contribute role keys; only
// enabled menus with non-empty permission strings contribute permissions.
// DISTINCT in both queries makes the union semantics explicit, though the
// Grants set types would collapse duplicates anyway.
type SQLResolver struct {
	db *sql.DB
}

// NewSQLResolver creates a resolver over the given database handle.
func NewSQLResolver(db *sql.DB) *SQLResolver {
	return &SQLResolver{db: db}
}

const roleKeysQuery = `
	SELECT DISTINCT r.role_key
	FROM roles r
	INNER JOIN user_roles ur ON r.id = ur.role_id
	WHERE ur.user_id = $1 AND r.status = $2 AND r.deleted = FALSE
`

const permsQuery = `
	SELECT DISTINCT m.perms
	FROM menus m
	INNER JOIN role_menus rm ON m.id = rm.menu_id
	INNER JOIN user_roles ur ON rm.role_id = ur.role_id
	WHERE ur.user_id = $1 AND m.status = $2 AND m.perms IS NOT NULL AND m.perms <> ''
`

// Resolve implements Resolver.
func (r *SQLResolver) Resolve(ctx context.Context, userID int64) (*Grants, error) {
	roleKeys, err := r.queryStrings(ctx, roleKeysQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("permissions: resolving role keys for user %d: %w", userID, err)
	}

	perms, err := r.queryStrings(ctx, permsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("permissions: resolving permissions for user %d: %w", userID, err)
	}

	return NewGrants(roleKeys, perms), nil
}

func (r *SQLResolver) queryStrings(ctx context.Context, query string, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, userID, statusEnabled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
