package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-service/internal/authz"
	"github.com/clinicdesk/booking-service/internal/identity"
	redisclient "github.com/clinicdesk/booking-service/internal/redis"
	"github.com/clinicdesk/booking-service/pkg/logging"
)

var (
	// ErrSlotBusy means another caller holds the lock for this slot right
	// now; the booking was not attempted.
	ErrSlotBusy = errors.New("slot is currently being booked, please retry")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrStoreTimeout            = errors.New("appointment store call timed out")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// BookedHook runs after an appointment has been persisted. Hook failures
// never surface to the booking caller; implementations log and move on.
type BookedHook func(ctx context.Context, appt Appointment)

type Service struct {
	repo         Repository
	locker       redisclient.Locker
	profiles     identity.ProfileDirectory
	storeTimeout time.Duration
	logger       *logging.Logger
	hooks        []BookedHook
}

func NewService(repo Repository, locker redisclient.Locker, profiles identity.ProfileDirectory, storeTimeout time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:         repo,
		locker:       locker,
		profiles:     profiles,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// OnBooked registers a post-commit hook for successful creations.
func (s *Service) OnBooked(hook BookedHook) {
	s.hooks = append(s.hooks, hook)
}

type CreateInput struct {
	PatientID string // ignored for patient actors, who always book for themselves
	Doctor    string
	Date      string
	Time      string
}

// Create books a slot. The conflict check and the insert run inside a
// per-slot lock so concurrent requests for the same doctor/date/time
// cannot both pass the check; the unique index on the triple backstops
// the lock.
func (s *Service) Create(ctx context.Context, actor identity.Session, in CreateInput) (*Appointment, error) {
	doctor := strings.TrimSpace(in.Doctor)
	if doctor == "" {
		return nil, validationError("doctor is required")
	}
	if in.Date == "" {
		return nil, validationError("date is required")
	}
	if _, err := ParseDate(in.Date); err != nil {
		return nil, validationError("date must be dd/mm/yyyy")
	}
	if in.Time == "" {
		return nil, validationError("time is required")
	}
	if !ValidSlot(in.Time) {
		return nil, validationError("time must be one of the half-hour slots between 08:00 AM and 07:30 PM")
	}

	var patientID, patientName string

	switch actor.Role {
	case identity.RolePatient:
		if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionCreateOwn, "") {
			return nil, authz.ErrNotPermitted
		}
		if in.PatientID != "" && in.PatientID != actor.UserID {
			return nil, authz.ErrNotPermitted
		}
		patientID = actor.UserID
		patientName = actor.Name
	default:
		if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionCreateAny, "") {
			return nil, authz.ErrNotPermitted
		}
		if in.PatientID == "" {
			return nil, validationError("patient_id is required")
		}
		var p *identity.Profile
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			p, err = s.profiles.GetPatient(ctx, in.PatientID)
			return err
		})
		if err != nil {
			if errors.Is(err, identity.ErrProfileNotFound) {
				return nil, ErrPatientNotFound
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
		patientID = p.ID
		patientName = p.Name
	}

	appt := Appointment{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		PatientName:   patientName,
		DoctorName:    doctor,
		Date:          in.Date,
		Time:          in.Time,
		Status:        StatusPending,
		ScheduledBy:   actor.Name,
		ScheduledByID: actor.UserID,
	}

	err := s.locker.WithSlotLock(ctx, SlotKey(doctor, in.Date, in.Time), func(lockCtx context.Context) error {
		existing, err := s.findBySlot(lockCtx, doctor, in.Date, in.Time)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrSlotTaken
		}
		return s.withTimeout(lockCtx, func(ctx context.Context) error {
			return s.repo.Create(ctx, appt)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrStoreTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor", doctor,
		"date", in.Date,
		"time", in.Time,
		"scheduled_by", actor.UserID,
	)

	for _, hook := range s.hooks {
		hook(ctx, appt)
	}

	return &appt, nil
}

type EditInput struct {
	Doctor string
	Date   string
	Time   string
	Status Status
}

// Edit rewrites the four mutable fields of an existing appointment. The
// conflict check runs only when the doctor/date/time triple changed, and
// excludes the appointment itself from the match set.
func (s *Service) Edit(ctx context.Context, actor identity.Session, id string, in EditInput) (*Appointment, error) {
	if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionEdit, "") {
		return nil, authz.ErrNotPermitted
	}

	doctor := strings.TrimSpace(in.Doctor)
	if doctor == "" {
		return nil, validationError("doctor is required")
	}
	if _, err := ParseDate(in.Date); err != nil {
		return nil, validationError("date must be dd/mm/yyyy")
	}
	if !ValidSlot(in.Time) {
		return nil, validationError("time must be one of the half-hour slots between 08:00 AM and 07:30 PM")
	}
	if in.Status != StatusPending && in.Status != StatusConfirmed {
		return nil, validationError("status must be pending or confirmed")
	}

	var existing *Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.repo.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if existing.Status == StatusConfirmed && in.Status == StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	slotChanged := existing.DoctorName != doctor || existing.Date != in.Date || existing.Time != in.Time

	apply := func(ctx context.Context) error {
		if slotChanged {
			conflicts, err := s.findBySlotExcluding(ctx, doctor, in.Date, in.Time, id)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return ErrSlotTaken
			}
		}
		return s.withTimeout(ctx, func(ctx context.Context) error {
			return s.repo.UpdateFields(ctx, id, doctor, in.Date, in.Time, in.Status)
		})
	}

	if slotChanged {
		err = s.locker.WithSlotLock(ctx, SlotKey(doctor, in.Date, in.Time), apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrStoreTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	updated := *existing
	updated.DoctorName = doctor
	updated.Date = in.Date
	updated.Time = in.Time
	updated.Status = in.Status

	s.logger.Info("appointment updated", "appointment_id", id, "doctor", doctor, "date", in.Date, "time", in.Time, "status", in.Status)
	return &updated, nil
}

// Cancel removes an appointment. Patients may only cancel their own;
// receptionists may cancel any. Cancellation is a hard delete, so the
// freed slot becomes bookable immediately.
func (s *Service) Cancel(ctx context.Context, actor identity.Session, id string) error {
	var existing *Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.repo.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionCancel, existing.PatientID) {
		return authz.ErrNotPermitted
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrStoreTimeout) {
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logger.Info("appointment cancelled", "appointment_id", id, "cancelled_by", actor.UserID)
	return nil
}

// ListForPatient returns the actor's own appointments with the patient
// name re-resolved from the profile directory, so the display always
// reflects the current profile name rather than the booking-time snapshot.
func (s *Service) ListForPatient(ctx context.Context, actor identity.Session) ([]Appointment, error) {
	if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionListOwn, "") {
		return nil, authz.ErrNotPermitted
	}

	var appts []Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		appts, err = s.repo.ListByPatient(ctx, actor.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStoreTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	var p *identity.Profile
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.profiles.Get(ctx, actor.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	for i := range appts {
		appts[i].PatientName = p.Name
	}

	sortAppointments(appts)
	return appts, nil
}

// ListAll returns every appointment for receptionists, each with the
// patient name re-resolved. Records whose patient profile no longer
// resolves are skipped rather than failing the whole listing.
func (s *Service) ListAll(ctx context.Context, actor identity.Session) ([]Appointment, error) {
	if !authz.IsPermitted(actor.Role, actor.UserID, authz.ActionListAll, "") {
		return nil, authz.ErrNotPermitted
	}

	var appts []Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		appts, err = s.repo.ListAll(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStoreTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	names := make(map[string]string, len(appts))
	result := make([]Appointment, 0, len(appts))
	for _, appt := range appts {
		name, seen := names[appt.PatientID]
		if !seen {
			var p *identity.Profile
			err := s.withTimeout(ctx, func(ctx context.Context) error {
				var err error
				p, err = s.profiles.GetPatient(ctx, appt.PatientID)
				return err
			})
			if err != nil {
				if errors.Is(err, identity.ErrProfileNotFound) {
					s.logger.Warn("skipping appointment with unresolvable patient", "appointment_id", appt.ID, "patient_id", appt.PatientID)
					names[appt.PatientID] = ""
					continue
				}
				return nil, fmt.Errorf("load patient profile: %w", err)
			}
			name = p.Name
			names[appt.PatientID] = name
		}
		if name == "" {
			continue
		}
		appt.PatientName = name
		result = append(result, appt)
	}

	sortAppointments(result)
	return result, nil
}

// sortAppointments orders by calendar date, then slot position within the
// day, then id for a stable tie-break. The store itself guarantees no
// order.
func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		di, erri := ParseDate(appts[i].Date)
		dj, errj := ParseDate(appts[j].Date)
		if erri == nil && errj == nil && !di.Equal(dj) {
			return di.Before(dj)
		}
		si, _ := SlotIndex(appts[i].Time)
		sj, _ := SlotIndex(appts[j].Time)
		if si != sj {
			return si < sj
		}
		return appts[i].ID < appts[j].ID
	})
}

func (s *Service) findBySlot(ctx context.Context, doctor, date, timeSlot string) ([]Appointment, error) {
	var appts []Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		appts, err = s.repo.FindBySlot(ctx, doctor, date, timeSlot)
		return err
	})
	return appts, err
}

func (s *Service) findBySlotExcluding(ctx context.Context, doctor, date, timeSlot, excludeID string) ([]Appointment, error) {
	var appts []Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		appts, err = s.repo.FindBySlotExcluding(ctx, doctor, date, timeSlot, excludeID)
		return err
	})
	return appts, err
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
