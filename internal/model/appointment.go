package model

import "time"

const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"
)

// Appointment field names are the wire contract; the UI and the reminder
// pipeline both read these keys.
type Appointment struct {
	ID              string    `json:"id"`
	ConsultantID    string    `json:"consultantId"`
	ClientName      string    `json:"clientName"`
	ClientPhone     string    `json:"clientPhone"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
	Title           string    `json:"title"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
