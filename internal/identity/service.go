package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/booking-service/pkg/logging"
)

const minPasswordLen = 6

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var ErrStoreTimeout = errors.New("identity store call timed out")

// ErrRollbackFailed marks a registration failure where the compensating
// credential delete also failed, leaving an orphaned credential that needs
// manual cleanup.
var ErrRollbackFailed = errors.New("credential rollback failed")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	creds        CredentialStore
	profiles     ProfileDirectory
	storeTimeout time.Duration
	logger       *logging.Logger
}

func NewService(creds CredentialStore, profiles ProfileDirectory, storeTimeout time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		creds:        creds,
		profiles:     profiles,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// Register validates locally, creates the credential, then writes the
// profile into the role's collection. If the profile write fails the
// credential is deleted again so no authenticated-but-profileless account
// is left behind.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(strings.ToLower(in.Email))

	if name == "" {
		return nil, validationError("name is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, validationError("invalid email format")
	}
	if len(in.Password) < minPasswordLen {
		return nil, validationError("password must be at least 6 characters")
	}
	if !in.Role.Valid() {
		return nil, validationError("role must be patient or receptionist")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := uuid.NewString()

	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.creds.Create(ctx, userID, email, string(hash))
	}); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}

	profile := Profile{
		ID:    userID,
		Name:  name,
		Email: email,
		Role:  in.Role,
	}

	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.profiles.Put(ctx, profile)
	}); err != nil {
		// Roll back the credential so the account cannot sign in without
		// a profile. Runs before the registration reports failure.
		if delErr := s.creds.Delete(ctx, userID); delErr != nil {
			s.logger.Error("credential rollback failed", "user_id", userID, "error", delErr)
			return nil, fmt.Errorf("%w: write profile: %v, delete credential: %v", ErrRollbackFailed, err, delErr)
		}
		return nil, fmt.Errorf("write profile: %w", err)
	}

	s.logger.Info("user registered", "user_id", userID, "role", in.Role)
	return &profile, nil
}

// SignIn verifies the credential and resolves the profile. A credential
// without a profile fails closed.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	var cred *Credential
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		cred, err = s.creds.GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.resolveProfile(ctx, cred.UserID)
}

// FederatedSignIn handles a sign-in asserted by an external identity
// provider: the subject plus profile hints. First-time callers get a
// patient profile created from the hints; federated onboarding only
// applies to patients.
func (s *Service) FederatedSignIn(ctx context.Context, subject, name, email string) (*Profile, error) {
	if subject == "" {
		return nil, validationError("subject is required")
	}

	p, err := s.resolveProfile(ctx, subject)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	profile := Profile{
		ID:    subject,
		Name:  name,
		Email: strings.TrimSpace(strings.ToLower(email)),
		Role:  RolePatient,
	}
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.profiles.Put(ctx, profile)
	}); err != nil {
		return nil, fmt.Errorf("write federated profile: %w", err)
	}

	s.logger.Info("federated patient onboarded", "user_id", subject)
	return &profile, nil
}

// Resolve rehydrates a session from token claims. The role claim must
// agree with the stored profile; a missing profile fails closed.
func (s *Service) Resolve(ctx context.Context, userID string, role Role) (Session, error) {
	p, err := s.resolveProfile(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if p.Role != role {
		return Session{}, ErrProfileNotFound
	}
	return Session{UserID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}, nil
}

func (s *Service) resolveProfile(ctx context.Context, userID string) (*Profile, error) {
	var p *Profile
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.profiles.Get(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (s *Service) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrStoreTimeout
	}
	return err
}
