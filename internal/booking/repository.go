package booking

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means the doctor already holds an appointment at that
	// date and time. Returned by the conflict query and by Create when the
	// storage-level unique constraint fires.
	ErrSlotTaken = errors.New("slot already has an appointment")
)

// Repository contains all appointment store interactions the scheduler
// needs: key-based reads/writes plus the equality-filtered slot lookups
// used for conflict checks.
type Repository interface {
	Create(ctx context.Context, appt Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)

	// UpdateFields rewrites only the four mutable fields; id, patient and
	// scheduler attribution never change after creation.
	UpdateFields(ctx context.Context, id, doctor, date, timeSlot string, status Status) error
	Delete(ctx context.Context, id string) error

	// Conflict checks: exact string equality on all three fields. The
	// excluding variant drops the appointment's own id from the match set
	// during edits.
	FindBySlot(ctx context.Context, doctor, date, timeSlot string) ([]Appointment, error)
	FindBySlotExcluding(ctx context.Context, doctor, date, timeSlot, excludeID string) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID string) ([]Appointment, error)
	ListAll(ctx context.Context) ([]Appointment, error)
}
