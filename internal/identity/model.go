package identity

import "time"

type Role string

const (
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleReceptionist
}

// Profile is the stored record of a user, keyed by the identifier the
// credential store assigned at registration. Role never changes after
// creation.
type Profile struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Phone     string
	CreatedAt time.Time
}

// Credential is the sign-in record, kept separate from the profile the way
// the backing store keeps auth accounts separate from user documents.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session identifies who is acting on a request and with what role. It is
// rebuilt per request from the session token plus a profile lookup, never
// stored server-side.
type Session struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}
