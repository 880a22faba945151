package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/booking-service/internal/authz"
	"github.com/clinicdesk/booking-service/internal/identity"
	redisclient "github.com/clinicdesk/booking-service/internal/redis"
)

// memRepo is an in-memory Repository that also counts conflict queries so
// tests can assert when the conflict check did or did not run.
type memRepo struct {
	mu          sync.Mutex
	appts       map[string]Appointment
	slotQueries int
	failList    error
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[string]Appointment)}
}

func (r *memRepo) Create(ctx context.Context, appt Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.DoctorName == appt.DoctorName && a.Date == appt.Date && a.Time == appt.Time {
			return ErrSlotTaken
		}
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	r.appts[appt.ID] = appt
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) UpdateFields(ctx context.Context, id, doctor, date, timeSlot string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.DoctorName = doctor
	a.Date = date
	a.Time = timeSlot
	a.Status = status
	a.UpdatedAt = time.Now()
	r.appts[id] = a
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appts, id)
	return nil
}

func (r *memRepo) FindBySlot(ctx context.Context, doctor, date, timeSlot string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotQueries++
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorName == doctor && a.Date == date && a.Time == timeSlot {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) FindBySlotExcluding(ctx context.Context, doctor, date, timeSlot, excludeID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotQueries++
	var out []Appointment
	for _, a := range r.appts {
		if a.ID != excludeID && a.DoctorName == doctor && a.Date == date && a.Time == timeSlot {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListAll(ctx context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	out := make([]Appointment, 0, len(r.appts))
	for _, a := range r.appts {
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appts)
}

// fakeLocker runs the critical section inline; with busy set it simulates
// a contended slot.
type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type fakeProfiles struct {
	patients      map[string]identity.Profile
	receptionists map[string]identity.Profile
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (*identity.Profile, error) {
	if p, ok := f.patients[userID]; ok {
		return &p, nil
	}
	if p, ok := f.receptionists[userID]; ok {
		return &p, nil
	}
	return nil, identity.ErrProfileNotFound
}

func (f *fakeProfiles) GetPatient(ctx context.Context, userID string) (*identity.Profile, error) {
	if p, ok := f.patients[userID]; ok {
		return &p, nil
	}
	return nil, identity.ErrProfileNotFound
}

func (f *fakeProfiles) Put(ctx context.Context, p identity.Profile) error {
	if p.Role == identity.RoleReceptionist {
		f.receptionists[p.ID] = p
	} else {
		f.patients[p.ID] = p
	}
	return nil
}

var (
	patientOne   = identity.Session{UserID: "p1", Name: "Pat One", Role: identity.RolePatient}
	patientTwo   = identity.Session{UserID: "p2", Name: "Pat Two", Role: identity.RolePatient}
	receptionist = identity.Session{UserID: "r1", Name: "Rec One", Role: identity.RoleReceptionist}
)

func newTestService(t *testing.T) (*Service, *memRepo, *fakeProfiles) {
	t.Helper()
	repo := newMemRepo()
	profiles := &fakeProfiles{
		patients: map[string]identity.Profile{
			"p1": {ID: "p1", Name: "Pat One", Role: identity.RolePatient},
			"p2": {ID: "p2", Name: "Pat Two", Role: identity.RolePatient},
		},
		receptionists: map[string]identity.Profile{
			"r1": {ID: "r1", Name: "Rec One", Role: identity.RoleReceptionist},
		},
	}
	svc := NewService(repo, &fakeLocker{}, profiles, time.Second, nil)
	return svc, repo, profiles
}

func validInput() CreateInput {
	return CreateInput{Doctor: "Dr. A - Cardiology", Date: "01/01/2025", Time: "09:00 AM"}
}

func TestCreate_PatientBooksOwnSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)

	var booked []Appointment
	svc.OnBooked(func(ctx context.Context, appt Appointment) {
		booked = append(booked, appt)
	})

	appt, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, "p1", appt.PatientID)
	assert.Equal(t, "Pat One", appt.PatientName)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "Pat One", appt.ScheduledBy)
	assert.Equal(t, "p1", appt.ScheduledByID)
	assert.Equal(t, 1, repo.count())

	require.Len(t, booked, 1)
	assert.Equal(t, appt.ID, booked[0].ID)
}

func TestCreate_ValidationRejectsBeforeAnyStoreCall(t *testing.T) {
	svc, repo, _ := newTestService(t)

	cases := []CreateInput{
		{Doctor: "", Date: "01/01/2025", Time: "09:00 AM"},
		{Doctor: "Dr. A", Date: "", Time: "09:00 AM"},
		{Doctor: "Dr. A", Date: "2025-01-01", Time: "09:00 AM"},
		{Doctor: "Dr. A", Date: "01/01/2025", Time: ""},
		{Doctor: "Dr. A", Date: "01/01/2025", Time: "09:15 AM"},
	}
	for _, in := range cases {
		_, err := svc.Create(context.Background(), patientOne, in)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr, "input %+v", in)
	}

	assert.Equal(t, 0, repo.slotQueries, "validation failures must not reach the store")
	assert.Equal(t, 0, repo.count())
}

func TestCreate_SlotConflictLeavesStoreUnchanged(t *testing.T) {
	svc, repo, _ := newTestService(t)

	first, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), patientTwo, validInput())
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 1, repo.count())

	remaining, err := repo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", remaining.PatientID)
}

func TestCreate_ReceptionistBooksOnBehalf(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := validInput()
	in.PatientID = "p2"
	appt, err := svc.Create(context.Background(), receptionist, in)
	require.NoError(t, err)

	assert.Equal(t, "p2", appt.PatientID)
	assert.Equal(t, "Pat Two", appt.PatientName)
	assert.Equal(t, "Rec One", appt.ScheduledBy)
	assert.Equal(t, "r1", appt.ScheduledByID)
}

func TestCreate_ReceptionistUnknownPatient(t *testing.T) {
	svc, repo, _ := newTestService(t)

	in := validInput()
	in.PatientID = "ghost"
	_, err := svc.Create(context.Background(), receptionist, in)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Equal(t, 0, repo.count())
}

func TestCreate_PatientCannotBookForSomeoneElse(t *testing.T) {
	svc, repo, _ := newTestService(t)

	in := validInput()
	in.PatientID = "p2"
	_, err := svc.Create(context.Background(), patientOne, in)
	assert.ErrorIs(t, err, authz.ErrNotPermitted)
	assert.Equal(t, 0, repo.count())
}

func TestCreate_ContendedSlotReturnsBusy(t *testing.T) {
	repo := newMemRepo()
	profiles := &fakeProfiles{patients: map[string]identity.Profile{"p1": {ID: "p1", Name: "Pat One", Role: identity.RolePatient}}}
	svc := NewService(repo, &fakeLocker{busy: true}, profiles, time.Second, nil)

	_, err := svc.Create(context.Background(), patientOne, validInput())
	assert.ErrorIs(t, err, ErrSlotBusy)
	assert.Equal(t, 0, repo.count())
}

func TestEdit_ConflictWithDifferentAppointment(t *testing.T) {
	svc, repo, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	inB := validInput()
	inB.Time = "09:30 AM"
	b, err := svc.Create(context.Background(), patientTwo, inB)
	require.NoError(t, err)

	// Move B onto A's slot
	_, err = svc.Edit(context.Background(), receptionist, b.ID, EditInput{
		Doctor: a.DoctorName, Date: a.Date, Time: a.Time, Status: StatusPending,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	stored, err := repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:30 AM", stored.Time, "failed edit must leave the record untouched")
}

func TestEdit_KeepingOwnSlotIsNotAConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	repo.slotQueries = 0

	// Same triple, only the status changes: no conflict query may run.
	updated, err := svc.Edit(context.Background(), receptionist, a.ID, EditInput{
		Doctor: a.DoctorName, Date: a.Date, Time: a.Time, Status: StatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.Equal(t, 0, repo.slotQueries, "unchanged triple must skip the conflict check")
}

func TestEdit_PreservesImmutableFields(t *testing.T) {
	svc, repo, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), receptionist, a.ID, EditInput{
		Doctor: "Dr. B - Neurology", Date: "02/01/2025", Time: "10:00 AM", Status: StatusConfirmed,
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)
	assert.Equal(t, "p1", stored.PatientID)
	assert.Equal(t, "Pat One", stored.PatientName)
	assert.Equal(t, "Pat One", stored.ScheduledBy)
	assert.Equal(t, "Dr. B - Neurology", stored.DoctorName)
}

func TestEdit_PatientForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), patientOne, a.ID, EditInput{
		Doctor: a.DoctorName, Date: a.Date, Time: "10:00 AM", Status: StatusPending,
	})
	assert.ErrorIs(t, err, authz.ErrNotPermitted)
}

func TestEdit_ConfirmedCannotGoBackToPending(t *testing.T) {
	svc, _, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), receptionist, a.ID, EditInput{
		Doctor: a.DoctorName, Date: a.Date, Time: a.Time, Status: StatusConfirmed,
	})
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), receptionist, a.ID, EditInput{
		Doctor: a.DoctorName, Date: a.Date, Time: a.Time, Status: StatusPending,
	})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestEdit_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Edit(context.Background(), receptionist, "missing", EditInput{
		Doctor: "Dr. A", Date: "01/01/2025", Time: "09:00 AM", Status: StatusPending,
	})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancel_OwnershipRules(t *testing.T) {
	svc, repo, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), patientTwo, a.ID)
	assert.ErrorIs(t, err, authz.ErrNotPermitted)
	assert.Equal(t, 1, repo.count())

	require.NoError(t, svc.Cancel(context.Background(), patientOne, a.ID))
	assert.Equal(t, 0, repo.count())
}

func TestCancel_ReceptionistCancelsAny(t *testing.T) {
	svc, repo, _ := newTestService(t)

	a, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), receptionist, a.ID))
	assert.Equal(t, 0, repo.count())

	err = svc.Cancel(context.Background(), receptionist, a.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListForPatient_OnlyOwnWithLiveNames(t *testing.T) {
	svc, _, profiles := newTestService(t)

	in1 := validInput()
	_, err := svc.Create(context.Background(), patientOne, in1)
	require.NoError(t, err)

	in2 := validInput()
	in2.Time = "08:00 AM"
	_, err = svc.Create(context.Background(), patientOne, in2)
	require.NoError(t, err)

	in3 := validInput()
	in3.Time = "10:00 AM"
	_, err = svc.Create(context.Background(), patientTwo, in3)
	require.NoError(t, err)

	// Profile rename after booking: listings must show the live name,
	// not the snapshot.
	profiles.patients["p1"] = identity.Profile{ID: "p1", Name: "Pat Renamed", Role: identity.RolePatient}

	appts, err := svc.ListForPatient(context.Background(), patientOne)
	require.NoError(t, err)
	require.Len(t, appts, 2)

	for _, a := range appts {
		assert.Equal(t, "p1", a.PatientID)
		assert.Equal(t, "Pat Renamed", a.PatientName)
	}

	// Deterministic order: earlier slot first on the same date
	assert.Equal(t, "08:00 AM", appts[0].Time)
	assert.Equal(t, "09:00 AM", appts[1].Time)
}

func TestListAll_SkipsUnresolvablePatients(t *testing.T) {
	svc, _, profiles := newTestService(t)

	_, err := svc.Create(context.Background(), patientOne, validInput())
	require.NoError(t, err)

	in2 := validInput()
	in2.Time = "09:30 AM"
	_, err = svc.Create(context.Background(), patientTwo, in2)
	require.NoError(t, err)

	// p2's profile disappears; their appointment is skipped, not an error.
	delete(profiles.patients, "p2")

	appts, err := svc.ListAll(context.Background(), receptionist)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "p1", appts[0].PatientID)
}

func TestListAll_PatientForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ListAll(context.Background(), patientOne)
	assert.ErrorIs(t, err, authz.ErrNotPermitted)
}

func TestList_SortsByDateThenSlot(t *testing.T) {
	svc, _, _ := newTestService(t)

	mk := func(date, slot string) {
		in := CreateInput{Doctor: "Dr. A - Cardiology", Date: date, Time: slot}
		_, err := svc.Create(context.Background(), patientOne, in)
		require.NoError(t, err)
	}

	mk("02/01/2025", "08:00 AM")
	mk("01/01/2025", "07:30 PM")
	mk("01/01/2025", "09:00 AM")
	mk("10/12/2024", "01:00 PM")

	appts, err := svc.ListForPatient(context.Background(), patientOne)
	require.NoError(t, err)
	require.Len(t, appts, 4)

	assert.Equal(t, "10/12/2024", appts[0].Date)
	assert.Equal(t, "01/01/2025", appts[1].Date)
	assert.Equal(t, "09:00 AM", appts[1].Time)
	assert.Equal(t, "01/01/2025", appts[2].Date)
	assert.Equal(t, "07:30 PM", appts[2].Time)
	assert.Equal(t, "02/01/2025", appts[3].Date)
}

func TestList_StoreTimeout(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.failList = context.DeadlineExceeded
	_, err := svc.ListForPatient(context.Background(), patientOne)
	assert.ErrorIs(t, err, ErrStoreTimeout)
}

// The end-to-end slot lifecycle: conflict, reschedule, freed slot rebooked.
func TestBookingScenario(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := CreateInput{Doctor: "Dr. A", Date: "01/01/2025", Time: "09:00 AM"}

	a, err := svc.Create(context.Background(), patientOne, in)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)

	_, err = svc.Create(context.Background(), patientTwo, in)
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = svc.Edit(context.Background(), receptionist, a.ID, EditInput{
		Doctor: "Dr. A", Date: "01/01/2025", Time: "09:30 AM", Status: StatusPending,
	})
	require.NoError(t, err)

	b, err := svc.Create(context.Background(), patientTwo, in)
	require.NoError(t, err)
	assert.Equal(t, "09:00 AM", b.Time)
}
