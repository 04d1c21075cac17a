package identity

import "time"

// Status represents an account's lifecycle state
type Status int

const (
	StatusDisabled Status = 0
	StatusEnabled  Status = 1
)

// String returns the human-readable status name
func (s Status) String() string {
	if s == StatusEnabled {
		return "enabled"
	}
	return "disabled"
}

// Identity is the resolved caller of a request. It is immutable after
// construction: the role and permission sets handed to New are copied in,
// and accessors hand copies back out, so a resolved authorization set can
// be shared across every permission check in a request without risk of
// mutation.
type Identity struct {
	UserID       int64
	Username     string
	Nickname     string
	Status       Status
	TenantID     string
	Token        string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	SourceIP     string

	roles       map[string]struct{}
	permissions map[string]struct{}
}

// New constructs an Identity with defensive copies of the role and
// permission sets.
func New(userID int64, username string, roles, permissions []string) *Identity {
	id := &Identity{
		UserID:      userID,
		Username:    username,
		Status:      StatusEnabled,
		IssuedAt:    time.Now(),
		roles:       make(map[string]struct{}, len(roles)),
		permissions: make(map[string]struct{}, len(permissions)),
	}
	for _, r := range roles {
		id.roles[r] = struct{}{}
	}
	for _, p := range permissions {
		id.permissions[p] = struct{}{}
	}
	return id
}

// Valid reports whether the identity carries the fields a login requires.
func (id *Identity) Valid() bool {
	return id != nil && id.UserID > 0 && id.Username != ""
}

// Expired reports whether the identity's token lifetime has elapsed.
// A zero ExpiresAt means no expiry was set and the identity never expires.
func (id *Identity) Expired() bool {
	return !id.ExpiresAt.IsZero() && time.Now().After(id.ExpiresAt)
}

// Roles returns a copy of the role-key set.
func (id *Identity) Roles() []string {
	out := make([]string, 0, len(id.roles))
	for r := range id.roles {
		out = append(out, r)
	}
	return out
}

// Permissions returns a copy of the permission-string set.
func (id *Identity) Permissions() []string {
	out := make([]string, 0, len(id.permissions))
	for p := range id.permissions {
		out = append(out, p)
	}
	return out
}

// HasRole reports whether the identity holds the given role key.
// The admin role implicitly holds every role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	if _, ok := id.roles[RoleAdmin]; ok {
		return true
	}
	_, ok := id.roles[role]
	return ok
}

// HasPermission reports whether the identity holds the given permission
// string, or the wildcard permission.
func (id *Identity) HasPermission(permission string) bool {
	if id == nil {
		return false
	}
	if _, ok := id.permissions[AllPermissions]; ok {
		return true
	}
	_, ok := id.permissions[permission]
	return ok
}

const (
	// RoleAdmin is the superuser role key.
	RoleAdmin = "admin"
	// AllPermissions is the wildcard permission granted to superusers.
	AllPermissions = "*:*:*"
)
