package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/repository"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/timestamp"
)

var errStoreDown = errors.New("connection refused")

// faultyEvents wraps the in-memory event store with injectable faults.
type faultyEvents struct {
	*repository.MemoryEventRepository

	mu       sync.Mutex
	listErr  error
	failCAS  map[string]bool
	failSet  map[string]bool
	racing   map[string]model.EventStatus
	casCalls int
}

func (f *faultyEvents) ListEvents(ctx context.Context) ([]model.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryEventRepository.ListEvents(ctx)
}

func (f *faultyEvents) CompareAndSwapStatus(ctx context.Context, id string, prev, next model.EventStatus) (bool, error) {
	f.mu.Lock()
	f.casCalls++
	fail := f.failCAS[id]
	racer, race := f.racing[id]
	f.mu.Unlock()

	if fail {
		return false, errStoreDown
	}
	if race {
		// Another writer lands between read and write.
		e, err := f.GetEvent(ctx, id)
		if err != nil {
			return false, err
		}
		e.Status = racer
		f.Put(*e)
	}
	return f.MemoryEventRepository.CompareAndSwapStatus(ctx, id, prev, next)
}

func (f *faultyEvents) SetParticipantCount(ctx context.Context, id string, count int) error {
	if f.failSet[id] {
		return errStoreDown
	}
	return f.MemoryEventRepository.SetParticipantCount(ctx, id, count)
}

// faultyRegistrations wraps the in-memory registration store.
type faultyRegistrations struct {
	*repository.MemoryRegistrationRepository
	listErr error
	failCAS map[string]bool
}

func (f *faultyRegistrations) ListByEvents(ctx context.Context, ids []string) ([]model.Registration, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryRegistrationRepository.ListByEvents(ctx, ids)
}

func (f *faultyRegistrations) CompareAndSwapStatus(ctx context.Context, id string, prev, next model.RegistrationStatus) (bool, error) {
	if f.failCAS[id] {
		return false, errStoreDown
	}
	return f.MemoryRegistrationRepository.CompareAndSwapStatus(ctx, id, prev, next)
}

type fixture struct {
	engine *Engine
	events *faultyEvents
	regs   *faultyRegistrations
	now    time.Time
}

func newFixture(t *testing.T, now time.Time, opts ...Option) *fixture {
	t.Helper()
	events, regs := repository.NewMemory()
	f := &fixture{
		events: &faultyEvents{MemoryEventRepository: events},
		regs:   &faultyRegistrations{MemoryRegistrationRepository: regs},
		now:    now,
	}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	engine, err := New(f.events, f.regs, timestamp.New(timestamp.DayFirst, time.UTC), opts...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

var created = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

func (f *fixture) addEvent(id string, status model.EventStatus, deadline, start, end string) {
	f.events.Put(model.Event{
		ID:     id,
		Name:   "event " + id,
		Status: status,
		Schedule: model.Schedule{
			RegistrationDeadline: deadline,
			StartDate:            start,
			EndDate:              end,
		},
		CreatedAt: created,
		UpdatedAt: created,
	})
}

func (f *fixture) addRegistration(id, eventID string, payment model.PaymentStatus, status model.RegistrationStatus) {
	f.regs.Put(model.Registration{
		ID:            id,
		EventID:       eventID,
		UserID:        "user-" + id,
		UserEmail:     id + "@example.com",
		PaymentStatus: payment,
		Status:        status,
		CreatedAt:     created,
		UpdatedAt:     created,
	})
}

func (f *fixture) status(t *testing.T, id string) model.EventStatus {
	t.Helper()
	e, err := f.events.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return e.Status
}

func (f *fixture) registration(t *testing.T, id string) model.Registration {
	t.Helper()
	r, err := f.regs.Get(context.Background(), id)
	require.NoError(t, err)
	return *r
}
