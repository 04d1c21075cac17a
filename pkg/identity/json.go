package identity

import (
	"encoding/json"
	"sort"
	"time"
)

// wire is the serialized shape of an Identity. Roles and permissions travel
// as sorted arrays so session payloads are deterministic.
type wire struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname,omitempty"`
	Status       Status    `json:"status"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Token        string    `json:"token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	SourceIP     string    `json:"source_ip,omitempty"`
	Roles        []string  `json:"roles,omitempty"`
	Permissions  []string  `json:"permissions,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (id *Identity) MarshalJSON() ([]byte, error) {
	roles := id.Roles()
	perms := id.Permissions()
	sort.Strings(roles)
	sort.Strings(perms)
	return json.Marshal(wire{
		UserID:       id.UserID,
		Username:     id.Username,
		Nickname:     id.Nickname,
		Status:       id.Status,
		TenantID:     id.TenantID,
		Token:        id.Token,
		RefreshToken: id.RefreshToken,
		IssuedAt:     id.IssuedAt,
		ExpiresAt:    id.ExpiresAt,
		SourceIP:     id.SourceIP,
		Roles:        roles,
		Permissions:  perms,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id.UserID = w.UserID
	id.Username = w.Username
	id.Nickname = w.Nickname
	id.Status = w.Status
	id.TenantID = w.TenantID
	id.Token = w.Token
	id.RefreshToken = w.RefreshToken
	id.IssuedAt = w.IssuedAt
	id.ExpiresAt = w.ExpiresAt
	id.SourceIP = w.SourceIP
	id.roles = make(map[string]struct{}, len(w.Roles))
	for _, r := range w.Roles {
		id.roles[r] = struct{}{}
	}
	id.permissions = make(map[string]struct{}, len(w.Permissions))
	for _, p := range w.Permissions {
		id.permissions[p] = struct{}{}
	}
	return nil
}
