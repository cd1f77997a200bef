package model

import "time"

// Queue statuses. Sent and Error are terminal.
const (
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusError      = "error"
)

// TypeCreated tags the immediate reminder produced at booking time.
// Offset reminders get a deterministic offset_<days>_<hour>:<minute> tag.
const TypeCreated = "created"

type NotificationPayload struct {
	MessageText string `json:"messageText"`
}

// NotificationRecord is one scheduled send in the durable queue. While
// status is processing, LockedUntil holds the lease expiry; an expired
// lease makes the record claimable again regardless of status.
type NotificationRecord struct {
	ID            string              `json:"id"`
	AppointmentID string              `json:"appointmentId"`
	Type          string              `json:"type"`
	To            string              `json:"to"`
	SendAt        time.Time           `json:"sendAt"`
	Payload       NotificationPayload `json:"payload"`
	Status        string              `json:"status"`
	Attempts      int                 `json:"attempts"`
	LockedUntil   *time.Time          `json:"lockedUntil,omitempty"`
	ErrorMessage  string              `json:"errorMessage,omitempty"`
	SentAt        *time.Time          `json:"sentAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
