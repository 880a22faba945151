package api

import (
	"time"

	"github.com/clinicdesk/booking-service/internal/booking"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FederatedLoginRequest struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Phone string `json:"phone,omitempty"`
}

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id,omitempty"`
	Doctor    string `json:"doctor"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type EditAppointmentRequest struct {
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	Doctor        string    `json:"doctor"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	ScheduledBy   string    `json:"scheduled_by"`
	ScheduledByID string    `json:"scheduled_by_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		Doctor:        a.DoctorName,
		Date:          a.Date,
		Time:          a.Time,
		Status:        string(a.Status),
		ScheduledBy:   a.ScheduledBy,
		ScheduledByID: a.ScheduledByID,
		CreatedAt:     a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
