package models

import "time"

// APIKey is the stored form of an access key. Only the SHA-256 of the key
// material is persisted; the plaintext is shown once at creation.
type APIKey struct {
	ID          string     `json:"id"`
	Hash        string     `json:"-"`
	Owner       string     `json:"owner"`
	Permissions []string   `json:"permissions"`
	Revoked     bool       `json:"revoked"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// Permission values understood by the API layer.
const (
	PermRead  = "read"
	PermWrite = "write"
	PermAdmin = "admin"
)

// HasPermission reports whether the key grants perm. Admin implies all.
func (k *APIKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm || p == PermAdmin {
			return true
		}
	}
	return false
}
