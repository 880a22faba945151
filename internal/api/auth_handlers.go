package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicdesk/booking-service/internal/identity"
)

func registerHandler(ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		profile, err := ids.Register(r.Context(), identity.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     identity.Role(req.Role),
		})
		if err != nil {
			handleIdentityError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toUserResponse(profile))
	}
}

func loginHandler(ids *identity.Service, issuer *identity.SessionIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		profile, err := ids.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			handleIdentityError(w, err)
			return
		}

		respondWithToken(w, issuer, profile)
	}
}

// federatedLoginHandler accepts a provider-asserted subject plus profile
// hints and signs the caller in as a patient, creating the profile on
// first contact.
func federatedLoginHandler(ids *identity.Service, issuer *identity.SessionIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FederatedLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		profile, err := ids.FederatedSignIn(r.Context(), req.Subject, req.Name, req.Email)
		if err != nil {
			handleIdentityError(w, err)
			return
		}

		respondWithToken(w, issuer, profile)
	}
}

func respondWithToken(w http.ResponseWriter, issuer *identity.SessionIssuer, profile *identity.Profile) {
	token, err := issuer.Issue(identity.Session{
		UserID: profile.ID,
		Name:   profile.Name,
		Email:  profile.Email,
		Role:   profile.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: toUserResponse(profile)})
}

func toUserResponse(p *identity.Profile) UserResponse {
	return UserResponse{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Role:  string(p.Role),
		Phone: p.Phone,
	}
}

func handleIdentityError(w http.ResponseWriter, err error) {
	var vErr *identity.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_failed", vErr.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	case errors.Is(err, identity.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", "no profile exists for this account")
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
	case errors.Is(err, identity.ErrRollbackFailed):
		writeError(w, http.StatusInternalServerError, "registration_rollback_failed", err.Error())
	case errors.Is(err, identity.ErrStoreTimeout):
		writeError(w, http.StatusGatewayTimeout, "store_timeout", "identity store did not respond in time")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
