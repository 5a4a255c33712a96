package model

import "time"

// Role is the coarse authorization attribute of an account.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account mirrors the `accounts` table. PasswordHash and PasswordChangedAt
// are never serialized; handlers can encode an Account directly.
//
// Fields:
//
//	ID                – opaque unique identifier (UUID string).
//	Username          – unique login name.
//	Email             – unique, trimmed and lower-cased address.
//	PasswordHash      – bcrypt hash, never the plaintext.
//	PasswordChangedAt – last credential update; tokens issued before it are rejected.
//	Role              – User or Admin.
//	IsActive          – deactivated accounts can neither log in nor pass the gate.
//	LastLogin         – last successful login (nil until the first one).
type Account struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	FirstName         string     `json:"firstName,omitempty"`
	LastName          string     `json:"lastName,omitempty"`
	Age               int        `json:"age,omitempty"`
	PasswordHash      string     `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	Role              Role       `json:"role"`
	IsActive          bool       `json:"isActive"`
	LastLogin         *time.Time `json:"lastLogin,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Sanitized returns a copy without credential material.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	a.PasswordChangedAt = nil
	return a
}

// ChangedPasswordAfter reports whether the credential was updated after a
// token issued at issuedAt. The change time is compared at microsecond
// precision, the resolution of both the store and the token.
func (a *Account) ChangedPasswordAfter(issuedAt time.Time) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return a.PasswordChangedAt.Truncate(time.Microsecond).After(issuedAt)
}

// Identity is the per-request view of an authenticated account attached by
// the access gate for downstream handlers.
type Identity struct {
	AccountID string `json:"accountId"`
	Role      Role   `json:"role"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}
