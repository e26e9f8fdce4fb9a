package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/booking"
	"github.com/careloop/scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	DoctorID    string `json:"doctorId"`
	PatientID   string `json:"patientId"`
	ScheduledAt string `json:"scheduledAt"` // RFC 3339
	Reason      string `json:"reason"`
	Type        string `json:"type,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type UpdateScheduleRequest struct {
	WeeklySchedule schedule.WeekSchedule `json:"weeklySchedule"`
	SlotMinutes    int                   `json:"slotMinutes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        uuid.UUID  `json:"doctorId"`
	PatientID       uuid.UUID  `json:"patientId"`
	ClinicID        *uuid.UUID `json:"clinicId,omitempty"`
	ScheduledAt     time.Time  `json:"scheduledAt"`
	DurationMinutes int        `json:"durationMinutes"`
	Status          string     `json:"status"`
	Type            string     `json:"type"`
	Reason          string     `json:"reason"`
	Notes           string     `json:"notes,omitempty"`
	CancelReason    *string    `json:"cancelReason,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		ClinicID:        a.ClinicID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Type:            string(a.Type),
		Reason:          a.Reason,
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
		CancelledAt:     a.CancelledAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type SlotResponse struct {
	Time      time.Time `json:"time"`
	Available bool      `json:"available"`
}

type DayAvailabilityResponse struct {
	Date          string         `json:"date"` // YYYY-MM-DD in the doctor's timezone
	DayName       string         `json:"dayName"`
	Slots         []SlotResponse `json:"slots"`
	IsFullyBooked bool           `json:"isFullyBooked"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID                 `json:"doctorId"`
	Days     []DayAvailabilityResponse `json:"days"`
}

func toAvailabilityResponse(doctorID uuid.UUID, days []booking.DayAvailability) AvailabilityResponse {
	out := AvailabilityResponse{
		DoctorID: doctorID,
		Days:     make([]DayAvailabilityResponse, 0, len(days)),
	}
	for _, day := range days {
		slots := make([]SlotResponse, 0, len(day.Slots))
		for _, s := range day.Slots {
			slots = append(slots, SlotResponse{Time: s.Start, Available: s.Available})
		}
		out.Days = append(out.Days, DayAvailabilityResponse{
			Date:          day.Date.Format("2006-01-02"),
			DayName:       day.DayName,
			Slots:         slots,
			IsFullyBooked: day.IsFullyBooked,
		})
	}
	return out
}

type DoctorResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Specialty      *string               `json:"specialty,omitempty"`
	ClinicID       *uuid.UUID            `json:"clinicId,omitempty"`
	Active         bool                  `json:"active"`
	SlotMinutes    int                   `json:"slotMinutes"`
	WeeklySchedule schedule.WeekSchedule `json:"weeklySchedule"`
	Timezone       string                `json:"timezone"`
}

func toDoctorResponse(d *booking.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialty:      d.Specialty,
		ClinicID:       d.ClinicID,
		Active:         d.Active,
		SlotMinutes:    d.SlotMinutes,
		WeeklySchedule: d.Week,
		Timezone:       d.Timezone,
	}
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
