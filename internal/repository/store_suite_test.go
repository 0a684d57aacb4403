package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// eventStore and registrationStore are the methods both backends share.
type eventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest, status model.EventStatus) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CompareAndSwapStatus(ctx context.Context, id string, prev, next model.EventStatus) (bool, error)
	SetParticipantCount(ctx context.Context, id string, count int) error
	Cancel(ctx context.Context, id string) (*model.Event, error)
}

type registrationStore interface {
	Book(ctx context.Context, eventID string, req model.RegisterRequest, guard BookingGuard) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error)
	CompareAndSwapStatus(ctx context.Context, id string, prev, next model.RegistrationStatus) (bool, error)
	UpdatePayment(ctx context.Context, id string, status model.PaymentStatus) (*model.Registration, error)
}

// storeSuite exercises a backend through the shared methods. Concrete
// suites set newStores.
type storeSuite struct {
	suite.Suite
	ctx       context.Context
	newStores func() (eventStore, registrationStore)
	events    eventStore
	regs      registrationStore
}

func (s *storeSuite) SetupTest() {
	s.ctx = context.Background()
	s.events, s.regs = s.newStores()
}

const missingID = "00000000-0000-0000-0000-000000000000"

func (s *storeSuite) createEvent(capacity int) *model.Event {
	e, err := s.events.Create(s.ctx, model.CreateEventRequest{
		Name:                 "Winter Hack",
		MaxParticipants:      capacity,
		RegistrationDeadline: time.Date(2025, 11, 12, 23, 59, 59, 0, time.UTC),
		StartDate:            time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2025, 11, 17, 17, 0, 0, 0, time.UTC),
	}, model.EventRegistrationOpen)
	s.Require().NoError(err)
	return e
}

func (s *storeSuite) book(eventID, email string) (*model.Registration, error) {
	return s.regs.Book(s.ctx, eventID, model.RegisterRequest{UserID: email, UserEmail: email}, nil)
}

func (s *storeSuite) TestCreateAndGet() {
	e := s.createEvent(10)

	got, err := s.events.GetEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(e.ID, got.ID)
	s.Equal("2025-11-12T23:59:59Z", got.Schedule.RegistrationDeadline)
	s.Equal(model.EventRegistrationOpen, got.Status)

	_, err = s.events.GetEvent(s.ctx, missingID)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.events.GetEvent(s.ctx, "not-a-uuid")
	s.ErrorIs(err, ErrNotFound)

	all, err := s.events.ListEvents(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *storeSuite) TestCreate_KeepsSubSecondBoundaries() {
	e, err := s.events.Create(s.ctx, model.CreateEventRequest{
		Name:                 "Split Second",
		RegistrationDeadline: time.Date(2025, 11, 12, 23, 59, 59, 500_000_000, time.UTC),
		StartDate:            time.Date(2025, 11, 15, 9, 0, 0, 1, time.UTC),
		EndDate:              time.Date(2025, 11, 17, 17, 0, 0, 0, time.UTC),
	}, model.EventRegistrationOpen)
	s.Require().NoError(err)

	got, err := s.events.GetEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal("2025-11-12T23:59:59.5Z", got.Schedule.RegistrationDeadline)
	s.Equal("2025-11-15T09:00:00.000000001Z", got.Schedule.StartDate)
	s.Equal("2025-11-17T17:00:00Z", got.Schedule.EndDate)
}

func (s *storeSuite) TestCompareAndSwapStatus() {
	e := s.createEvent(10)

	ok, err := s.events.CompareAndSwapStatus(s.ctx, e.ID, model.EventRegistrationOpen, model.EventRegistrationClosed)
	s.Require().NoError(err)
	s.True(ok)

	// The stored value moved on; a writer holding the old value loses.
	ok, err = s.events.CompareAndSwapStatus(s.ctx, e.ID, model.EventRegistrationOpen, model.EventActive)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.events.GetEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(model.EventRegistrationClosed, got.Status)
}

func (s *storeSuite) TestSetParticipantCount() {
	e := s.createEvent(10)

	s.Require().NoError(s.events.SetParticipantCount(s.ctx, e.ID, 7))
	got, err := s.events.GetEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(7, got.CurrentParticipants)

	s.ErrorIs(s.events.SetParticipantCount(s.ctx, missingID, 1), ErrNotFound)
}

func (s *storeSuite) TestCancel() {
	e := s.createEvent(10)

	got, err := s.events.Cancel(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(model.EventCancelled, got.Status)

	_, err = s.events.Cancel(s.ctx, e.ID)
	s.ErrorIs(err, ErrAlreadyCancelled)
	_, err = s.events.Cancel(s.ctx, missingID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *storeSuite) TestBook() {
	e := s.createEvent(2)

	reg, err := s.book(e.ID, "a@example.com")
	s.Require().NoError(err)
	s.Equal(model.PaymentPending, reg.PaymentStatus)
	s.Equal(model.RegistrationRegistered, reg.Status)

	_, err = s.book(e.ID, "a@example.com")
	s.ErrorIs(err, ErrAlreadyRegistered)

	_, err = s.book(e.ID, "b@example.com")
	s.Require().NoError(err)
	_, err = s.book(e.ID, "c@example.com")
	s.ErrorIs(err, ErrEventFull)

	_, err = s.book(missingID, "d@example.com")
	s.ErrorIs(err, ErrNotFound)

	// Booking never touches the cached count.
	got, err := s.events.GetEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Zero(got.CurrentParticipants)
}

func (s *storeSuite) TestBook_CancelledRegistrationsFreeSeats() {
	e := s.createEvent(1)
	reg, err := s.book(e.ID, "a@example.com")
	s.Require().NoError(err)

	ok, err := s.regs.CompareAndSwapStatus(s.ctx, reg.ID, model.RegistrationRegistered, model.RegistrationCancelled)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.book(e.ID, "b@example.com")
	s.NoError(err)
}

func (s *storeSuite) TestBook_GuardRejects() {
	e := s.createEvent(0)
	closed := fmt.Errorf("closed")

	_, err := s.regs.Book(s.ctx, e.ID, model.RegisterRequest{UserID: "u", UserEmail: "a@example.com"},
		func(ev model.Event) error {
			s.Equal(e.ID, ev.ID)
			return closed
		})
	s.ErrorIs(err, closed)

	regs, err := s.regs.ListByEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Empty(regs)
}

func (s *storeSuite) TestBook_ConcurrentRespectsCapacity() {
	e := s.createEvent(5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	booked := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.book(e.ID, fmt.Sprintf("user%d@example.com", i)); err == nil {
				mu.Lock()
				booked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(5, booked)
	regs, err := s.regs.ListByEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Len(regs, 5)
}

func (s *storeSuite) TestRegistrationsAcrossEvents() {
	e1 := s.createEvent(0)
	e2 := s.createEvent(0)
	e3 := s.createEvent(0)
	_, err := s.book(e1.ID, "a@example.com")
	s.Require().NoError(err)
	_, err = s.book(e2.ID, "a@example.com")
	s.Require().NoError(err)
	_, err = s.book(e3.ID, "a@example.com")
	s.Require().NoError(err)

	regs, err := s.regs.ListByEvents(s.ctx, []string{e1.ID, e2.ID})
	s.Require().NoError(err)
	s.Len(regs, 2)
	for _, r := range regs {
		s.NotEqual(e3.ID, r.EventID)
	}
}

func (s *storeSuite) TestUpdatePaymentAndStatus() {
	e := s.createEvent(0)
	reg, err := s.book(e.ID, "a@example.com")
	s.Require().NoError(err)

	updated, err := s.regs.UpdatePayment(s.ctx, reg.ID, model.PaymentCompleted)
	s.Require().NoError(err)
	s.Equal(model.PaymentCompleted, updated.PaymentStatus)
	s.Equal(model.RegistrationRegistered, updated.Status)

	ok, err := s.regs.CompareAndSwapStatus(s.ctx, reg.ID, model.RegistrationRegistered, model.RegistrationConfirmed)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.regs.CompareAndSwapStatus(s.ctx, reg.ID, model.RegistrationRegistered, model.RegistrationCancelled)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.regs.UpdatePayment(s.ctx, missingID, model.PaymentFailed)
	s.ErrorIs(err, ErrNotFound)
}
