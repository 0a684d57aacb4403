// Package repository implements persistence for events and registrations.
// The Postgres repositories use pgx directly (no ORM); the in-memory ones
// back tests and single-node development runs.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrAlreadyRegistered is returned when the same email registers twice.
var ErrAlreadyRegistered = errors.New("email already registered for this event")

// ErrAlreadyCancelled is returned when cancelling a cancelled event.
var ErrAlreadyCancelled = errors.New("event already cancelled")

// BookingGuard decides, with the event row locked, whether a registration
// may be created. A non-nil error aborts the booking and is returned as is.
type BookingGuard func(e model.Event) error

const eventColumns = `id, name, description, max_participants, current_participants,
	registration_deadline, start_date, end_date, status, created_at, updated_at`

const registrationColumns = `id, event_id, user_id, user_email, payment_status, status, created_at, updated_at`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event with a generated UUID. Boundaries are stored
// as RFC 3339 strings.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest, status model.EventStatus) (*model.Event, error) {
	event := newEvent(req, status)

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Name, event.Description, event.MaxParticipants, event.CurrentParticipants,
		event.Schedule.RegistrationDeadline, event.Schedule.StartDate, event.Schedule.EndDate,
		event.Status, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events ordered by creation time descending.
func (r *EventRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetEvent returns a single event or ErrNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// CompareAndSwapStatus sets the status to next only while it is still prev.
// The WHERE clause makes the check and the write a single atomic statement,
// so a concurrent writer that got there first simply leaves zero rows
// affected.
func (r *EventRepository) CompareAndSwapStatus(ctx context.Context, id string, prev, next model.EventStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, prev, next, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("update event status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetParticipantCount replaces the stored participant count.
func (r *EventRepository) SetParticipantCount(ctx context.Context, id string, count int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET current_participants = $2, updated_at = $3 WHERE id = $1`,
		id, count, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update participant count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel moves an event to cancelled from whatever status it holds.
func (r *EventRepository) Cancel(ctx context.Context, id string) (*model.Event, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	e, err := scanEvent(r.db.QueryRow(ctx,
		`UPDATE events SET status = $2, updated_at = $3
		 WHERE id = $1 AND status <> $2
		 RETURNING `+eventColumns,
		id, model.EventCancelled, time.Now().UTC(),
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cancel event: %w", err)
	}
	if _, err := r.GetEvent(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyCancelled
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Book creates a registration inside a transaction that holds the event
// row with SELECT … FOR UPDATE.
//
// The lock serialises concurrent bookings for the same event, so the
// guard, the duplicate check and the capacity check all see the same
// committed set of registrations. Capacity is checked by counting live
// registrations; the event's current_participants cache is left to the
// aggregate refresher and is never incremented here.
func (r *RegistrationRepository) Book(ctx context.Context, eventID string, req model.RegisterRequest, guard BookingGuard) (*model.Registration, error) {
	if !validID(eventID) {
		return nil, ErrNotFound
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	if guard != nil {
		if err := guard(*event); err != nil {
			return nil, err
		}
	}

	var dupCount int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_email = $2`,
		eventID, req.UserEmail,
	).Scan(&dupCount); err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dupCount > 0 {
		return nil, ErrAlreadyRegistered
	}

	if !event.Unlimited() {
		var live int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> $2`,
			eventID, model.RegistrationCancelled,
		).Scan(&live); err != nil {
			return nil, fmt.Errorf("count registrations: %w", err)
		}
		if live >= event.MaxParticipants {
			return nil, ErrEventFull
		}
	}

	reg := newRegistration(eventID, req)
	if _, err := tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.UserID, reg.UserEmail, reg.PaymentStatus, reg.Status, reg.CreatedAt, reg.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.ListByEvents(ctx, []string{eventID})
}

// ListByEvents returns the registrations of all the given events.
func (r *RegistrationRepository) ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = ANY($1)
		 ORDER BY created_at ASC`,
		eventIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// CompareAndSwapStatus sets the registration status to next only while it
// is still prev.
func (r *RegistrationRepository) CompareAndSwapStatus(ctx context.Context, id string, prev, next model.RegistrationStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, prev, next, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("update registration status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePayment records the payment status reported for a registration.
func (r *RegistrationRepository) UpdatePayment(ctx context.Context, id string, status model.PaymentStatus) (*model.Registration, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`UPDATE registrations SET payment_status = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING `+registrationColumns,
		id, status, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return reg, nil
}

// validID reports whether id can address a row; ids are UUID columns.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.MaxParticipants, &e.CurrentParticipants,
		&e.Schedule.RegistrationDeadline, &e.Schedule.StartDate, &e.Schedule.EndDate,
		&e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.UserEmail,
		&reg.PaymentStatus, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func newEvent(req model.CreateEventRequest, status model.EventStatus) *model.Event {
	now := time.Now().UTC()
	return &model.Event{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		Schedule: model.Schedule{
			RegistrationDeadline: req.RegistrationDeadline.UTC().Format(time.RFC3339Nano),
			StartDate:            req.StartDate.UTC().Format(time.RFC3339Nano),
			EndDate:              req.EndDate.UTC().Format(time.RFC3339Nano),
		},
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newRegistration(eventID string, req model.RegisterRequest) *model.Registration {
	now := time.Now().UTC()
	return &model.Registration{
		ID:            uuid.New().String(),
		EventID:       eventID,
		UserID:        req.UserID,
		UserEmail:     req.UserEmail,
		PaymentStatus: model.PaymentPending,
		Status:        model.RegistrationRegistered,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
