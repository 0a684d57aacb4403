// Package lifecycle derives event and registration statuses from the clock
// and reconciles them with what is stored.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

var (
	// ErrInvariantViolation marks a schedule whose boundaries are out of order.
	ErrInvariantViolation = errors.New("schedule boundaries out of order")
	// ErrWriteConflict marks a conditional write that lost to a concurrent writer.
	ErrWriteConflict = errors.New("write conflict")
	// ErrStorageUnavailable marks a failed read or write against the store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Priorities for "needs attention" queues. Higher sorts first.
const (
	priorityNone      = 0
	priorityCompleted = 1
	priorityOpen      = 2
	priorityUrgent    = 3
)

// CheckBoundaries reports ErrInvariantViolation when the deadline falls
// after the start or the start after the end. Equal instants are accepted.
func CheckBoundaries(b model.Boundaries) error {
	if b.RegistrationDeadline.After(b.StartDate) {
		return fmt.Errorf("%w: registration deadline %s after start %s",
			ErrInvariantViolation, b.RegistrationDeadline.Format(time.RFC3339), b.StartDate.Format(time.RFC3339))
	}
	if b.StartDate.After(b.EndDate) {
		return fmt.Errorf("%w: start %s after end %s",
			ErrInvariantViolation, b.StartDate.Format(time.RFC3339), b.EndDate.Format(time.RFC3339))
	}
	return nil
}

// Classify derives the status of an event with boundaries b at now. It is
// pure: the same inputs always give the same result. Out-of-order
// boundaries classify as Planning with the invalid-schedule phase.
func Classify(b model.Boundaries, now time.Time) model.Classification {
	if CheckBoundaries(b) != nil {
		return invalidSchedule()
	}

	switch {
	case b.EndDate.Before(now):
		return model.Classification{
			Status:   model.EventCompleted,
			Phase:    model.PhasePostEvent,
			Priority: priorityCompleted,
		}
	case !now.Before(b.StartDate) && !now.After(b.EndDate):
		return model.Classification{
			Status:   model.EventActive,
			Phase:    model.PhaseInProgress,
			CanPay:   true,
			Priority: priorityUrgent,
		}
	case b.RegistrationDeadline.Before(now) && now.Before(b.StartDate):
		return model.Classification{
			Status:   model.EventRegistrationClosed,
			Phase:    model.PhasePreEventClosed,
			CanPay:   true,
			Priority: priorityUrgent,
		}
	case !now.After(b.RegistrationDeadline):
		return model.Classification{
			Status:      model.EventRegistrationOpen,
			Phase:       model.PhaseRegistration,
			CanRegister: true,
			CanPay:      true,
			Priority:    priorityOpen,
		}
	}
	return invalidSchedule()
}

// ClassifyEvent classifies e at now. A cancelled event stays cancelled:
// cancellation is an organizer action the clock never overrides.
func ClassifyEvent(e model.Event, b model.Boundaries, now time.Time) model.Classification {
	if e.Status == model.EventCancelled {
		return Cancelled()
	}
	return Classify(b, now)
}

// Cancelled is the classification of a cancelled event.
func Cancelled() model.Classification {
	return model.Classification{
		Status:   model.EventCancelled,
		Phase:    model.PhaseCancelled,
		Priority: priorityNone,
	}
}

func invalidSchedule() model.Classification {
	return model.Classification{
		Status:   model.EventPlanning,
		Phase:    model.PhaseInvalidSchedule,
		Priority: priorityNone,
	}
}
