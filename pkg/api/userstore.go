package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kestrelsec/kestrel/pkg/identity"
)

// ErrUserNotFound is returned by UserStore lookups for unknown users.
var ErrUserNotFound = errors.New("api: user not found")

// User is a stored account as the credential check needs it. The password
// hash never leaves this package.
type User struct {
	ID           int64
	Username     string
	Nickname     string
	PasswordHash string
	Status       identity.Status
	TenantID     string
}

// UserStore is the persistence collaborator for credential lookups.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// SQLUserStore implements UserStore over the relational users table.
type SQLUserStore struct {
	db *sql.DB
}

// NewSQLUserStore creates a store over the given database handle.
func NewSQLUserStore(db *sql.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

const userByUsernameQuery = `
	SELECT id, username, nickname, password_hash, status, tenant_id
	FROM users
	WHERE username = $1 AND deleted = FALSE
`

const userByIDQuery = `
	SELECT id, username, nickname, password_hash, status, tenant_id
	FROM users
	WHERE id = $1 AND deleted = FALSE
`

// FindByUsername implements UserStore.
func (s *SQLUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userByUsernameQuery, username))
}

// FindByID implements UserStore.
func (s *SQLUserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userByIDQuery, id))
}

func (s *SQLUserStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var nickname, tenantID sql.NullString
	err := row.Scan(&u.ID, &u.Username, &nickname, &u.PasswordHash, &u.Status, &tenantID)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("api: loading user: %w", err)
	}
	u.Nickname = nickname.String
	u.TenantID = tenantID.String
	return &u, nil
}
