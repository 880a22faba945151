// Package authz holds the role rules for appointment operations. Every
// gated operation funnels through IsPermitted so the rules hold
// server-side rather than relying on client behavior.
package authz

import (
	"errors"

	"github.com/clinicdesk/booking-service/internal/identity"
)

var ErrNotPermitted = errors.New("action not permitted for this role")

type Action string

const (
	ActionCreateOwn Action = "create_own" // book an appointment for yourself
	ActionCreateAny Action = "create_any" // book on behalf of any patient
	ActionEdit      Action = "edit"       // change doctor/date/time/status
	ActionCancel    Action = "cancel"     // delete an appointment
	ActionListOwn   Action = "list_own"   // list your own appointments
	ActionListAll   Action = "list_all"   // list every appointment
)

// IsPermitted decides whether an actor may perform an action. ownerID is
// the patient identifier on the target appointment, or empty when the
// action has no target (create, list).
func IsPermitted(role identity.Role, actorID string, action Action, ownerID string) bool {
	switch role {
	case identity.RoleReceptionist:
		switch action {
		case ActionCreateAny, ActionEdit, ActionCancel, ActionListAll:
			return true
		}
		return false
	case identity.RolePatient:
		switch action {
		case ActionCreateOwn, ActionListOwn:
			return true
		case ActionCancel:
			return ownerID != "" && ownerID == actorID
		}
		return false
	}
	return false
}
