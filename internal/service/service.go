// Package service implements business logic, validation, and orchestration
// between HTTP handlers, the lifecycle engine and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/repository"
)

// ErrRegistrationClosed is returned when the event does not accept
// registrations at the time of the request.
var ErrRegistrationClosed = errors.New("registration is not open for this event")

// ValidationError wraps a rejected request payload.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// EventRepository is the event persistence the service needs.
type EventRepository interface {
	lifecycle.EventStore
	Create(ctx context.Context, req model.CreateEventRequest, status model.EventStatus) (*model.Event, error)
	Cancel(ctx context.Context, id string) (*model.Event, error)
}

// RegistrationRepository is the registration persistence the service needs.
type RegistrationRepository interface {
	lifecycle.RegistrationStore
	Book(ctx context.Context, eventID string, req model.RegisterRequest, guard repository.BookingGuard) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	UpdatePayment(ctx context.Context, id string, status model.PaymentStatus) (*model.Registration, error)
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events        EventRepository
	registrations RegistrationRepository
	engine        *lifecycle.Engine
	validate      *validator.Validate
	log           *logger.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events EventRepository,
	registrations RegistrationRepository,
	engine *lifecycle.Engine,
	log *logger.Logger,
) *EventService {
	return &EventService{
		events:        events,
		registrations: registrations,
		engine:        engine,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

// CreateEvent validates the request and stores the event with the status
// the classifier derives for it right now.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.EventView, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: describe(err)}
	}

	c := lifecycle.Classify(model.Boundaries{
		RegistrationDeadline: req.RegistrationDeadline,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
	}, s.engine.Now())

	event, err := s.events.Create(ctx, req, c.Status)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("event created", "event_id", event.ID, "status", event.Status)
	return &model.EventView{Event: *event, Classification: &c}, nil
}

// ListEvents returns all events with their live classification.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventView, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	now := s.engine.Now()
	views := make([]model.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, s.view(e, now))
	}
	return views, nil
}

// GetEvent returns a single event by ID with its live classification.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventView, error) {
	if id == "" {
		return nil, &ValidationError{Err: errors.New("event id is required")}
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	v := s.view(*event, s.engine.Now())
	return &v, nil
}

// CancelEvent marks an event cancelled and cascades the cancellation to
// its registrations.
func (s *EventService) CancelEvent(ctx context.Context, id string) (*model.EventView, error) {
	event, err := s.events.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel event: %w", err)
	}
	s.log.Info("event cancelled", "event_id", id)

	sweep, err := s.engine.Sweep(ctx, id)
	if err != nil {
		// The next reconciliation pass converges the registrations.
		s.log.Warn("cascade after cancellation failed", "event_id", id, "error", err)
	} else if sweep.Failed > 0 || sweep.Skipped > 0 {
		s.log.Warn("cascade after cancellation incomplete",
			"event_id", id, "failed", sweep.Failed, "skipped", sweep.Skipped)
	}

	v := s.view(*event, s.engine.Now())
	return &v, nil
}

// Register validates the request and books a seat if the event accepts
// registrations right now.
func (s *EventService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	req.UserEmail = strings.TrimSpace(strings.ToLower(req.UserEmail))
	req.UserID = strings.TrimSpace(req.UserID)
	if eventID == "" {
		return nil, &ValidationError{Err: errors.New("event id is required")}
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: describe(err)}
	}

	guard := func(e model.Event) error {
		c, err := s.engine.ClassifyStored(e, s.engine.Now())
		if err != nil {
			s.log.Warn("registration refused: schedule integrity", "event_id", e.ID, "error", err)
		}
		if !c.CanRegister {
			return ErrRegistrationClosed
		}
		return nil
	}

	reg, err := s.registrations.Book(ctx, eventID, req, guard)
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, repository.ErrNotFound) ||
			errors.Is(err, repository.ErrEventFull) ||
			errors.Is(err, repository.ErrAlreadyRegistered) ||
			errors.Is(err, ErrRegistrationClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("register for event: %w", err)
	}
	return reg, nil
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

// UpdatePayment records a payment state and re-derives the registration's
// status and its event's participant count.
func (s *EventService) UpdatePayment(ctx context.Context, registrationID string, req model.PaymentUpdateRequest) (*model.Registration, error) {
	req.PaymentStatus = model.PaymentStatus(strings.ToLower(strings.TrimSpace(string(req.PaymentStatus))))
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: describe(err)}
	}

	reg, err := s.registrations.UpdatePayment(ctx, registrationID, req.PaymentStatus)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if _, err := s.engine.Sweep(ctx, reg.EventID); err != nil {
		s.log.Warn("registration sweep after payment failed", "registration_id", reg.ID, "error", err)
	}
	if _, err := s.engine.RefreshAggregates(ctx, reg.EventID); err != nil {
		s.log.Warn("participant recount after payment failed", "event_id", reg.EventID, "error", err)
	}

	regs, err := s.registrations.ListByEvent(ctx, reg.EventID)
	if err == nil {
		for i := range regs {
			if regs[i].ID == reg.ID {
				return &regs[i], nil
			}
		}
	}
	return reg, nil
}

func (s *EventService) view(e model.Event, now time.Time) model.EventView {
	c, err := s.engine.ClassifyStored(e, now)
	v := model.EventView{Event: e, Classification: &c}
	if err != nil {
		v.ScheduleIssue = err.Error()
	}
	return v
}

// describe turns validator errors into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
