// Package model defines the core domain types for the hackathon registration system.
package model

import "time"

// EventStatus is the lifecycle status persisted on an event.
type EventStatus string

const (
	EventPlanning           EventStatus = "planning"
	EventRegistrationOpen   EventStatus = "registration_open"
	EventRegistrationClosed EventStatus = "registration_closed"
	EventActive             EventStatus = "active"
	EventCompleted          EventStatus = "completed"
	EventCancelled          EventStatus = "cancelled"
)

// Valid reports whether s is one of the known event statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPlanning, EventRegistrationOpen, EventRegistrationClosed,
		EventActive, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment state reported for a registration.
// Paid and Registered are legacy values carried by imported records.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentPaid       PaymentStatus = "paid"
	PaymentRegistered PaymentStatus = "registered"
)

// RegistrationStatus is the status derived for a registration from its
// event's phase and its own payment state.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// Phase is a human-readable label for where "now" falls relative to an
// event's schedule.
type Phase string

const (
	PhaseRegistration    Phase = "registration"
	PhasePreEventClosed  Phase = "pre-event-closed"
	PhaseInProgress      Phase = "in-progress"
	PhasePostEvent       Phase = "post-event"
	PhaseInvalidSchedule Phase = "invalid-schedule"
	PhaseCancelled       Phase = "cancelled"
)

// Schedule holds an event's boundary timestamps exactly as they were
// supplied. Older records carry day-first slash dates instead of ISO-8601.
type Schedule struct {
	RegistrationDeadline string `json:"registration_deadline"`
	StartDate            string `json:"start_date"`
	EndDate              string `json:"end_date"`
}

// Boundaries is a normalized schedule.
type Boundaries struct {
	RegistrationDeadline time.Time `json:"registration_deadline"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
}

// Classification is the status derived for an event at a given instant.
// It is computed on demand and never stored.
type Classification struct {
	Status      EventStatus `json:"status"`
	Phase       Phase       `json:"phase"`
	CanRegister bool        `json:"can_register"`
	CanPay      bool        `json:"can_pay"`
	Priority    int         `json:"priority"`
}

// Event represents a hackathon created by an organizer.
type Event struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants"`
	Schedule            Schedule    `json:"schedule"`
	Status              EventStatus `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Unlimited reports whether the event has no participant cap.
func (e *Event) Unlimited() bool {
	return e.MaxParticipants <= 0
}

// Registration represents a user's enrollment in an event.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	UserEmail     string             `json:"user_email"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	Status        RegistrationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// EventView pairs a stored event with its live classification.
type EventView struct {
	Event
	Classification *Classification `json:"classification,omitempty"`
	ScheduleIssue  string          `json:"schedule_issue,omitempty"`
}

// CreateEventRequest is the payload for creating a new event. Boundaries
// must be ISO-8601 and strictly ordered.
type CreateEventRequest struct {
	Name                 string    `json:"name" validate:"required,max=200"`
	Description          string    `json:"description" validate:"max=5000"`
	MaxParticipants      int       `json:"max_participants" validate:"gte=0,lte=100000"`
	RegistrationDeadline time.Time `json:"registration_deadline" validate:"required"`
	StartDate            time.Time `json:"start_date" validate:"required,gtfield=RegistrationDeadline"`
	EndDate              time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID    string `json:"user_id" validate:"required,max=100"`
	UserEmail string `json:"user_email" validate:"required,email"`
}

// PaymentUpdateRequest records a payment state reported by the gateway.
type PaymentUpdateRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status" validate:"required,oneof=pending completed failed refunded"`
}

// ClassifyRequest asks for the classification of an arbitrary schedule.
// Now defaults to the server clock.
type ClassifyRequest struct {
	RegistrationDeadline string     `json:"registration_deadline"`
	StartDate            string     `json:"start_date"`
	EndDate              string     `json:"end_date"`
	Now                  *time.Time `json:"now,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
