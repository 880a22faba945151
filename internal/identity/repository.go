package identity

import (
	"context"
	"errors"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrProfileNotFound    = errors.New("profile not found")
)

// CredentialStore owns sign-in secrets. It knows nothing about roles or
// profiles; a credential without a matching profile is treated as
// unauthenticated by the service layer.
type CredentialStore interface {
	Create(ctx context.Context, userID, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	Delete(ctx context.Context, userID string) error
}

// ProfileDirectory maps user identifiers to profiles. Patients and
// receptionists live in separate collections; Get searches patients
// first, then receptionists.
type ProfileDirectory interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	GetPatient(ctx context.Context, userID string) (*Profile, error)
	Put(ctx context.Context, p Profile) error
}
