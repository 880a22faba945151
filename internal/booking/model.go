package booking

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment is one booked slot. Date is a dd/mm/yyyy calendar date and
// Time is one of the half-hour 12-hour slot labels; both travel as strings.
// PatientName is a snapshot from booking time; list operations overwrite
// it with the live profile name.
type Appointment struct {
	ID            string
	PatientID     string
	PatientName   string
	DoctorName    string
	Date          string
	Time          string
	Status        Status
	ScheduledBy   string
	ScheduledByID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotKey identifies the bookable window an appointment occupies. Two
// appointments with equal keys violate the uniqueness invariant.
func SlotKey(doctor, date, timeSlot string) string {
	return fmt.Sprintf("%s|%s|%s", doctor, date, timeSlot)
}
