package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// memoryDB is the shared state behind the in-memory repositories. One
// mutex guards both tables so Book sees events and registrations
// consistently, the way the row lock does in Postgres.
type memoryDB struct {
	mu     sync.RWMutex
	events map[string]model.Event
	regs   map[string]model.Registration
}

// MemoryEventRepository is an in-memory EventRepository.
type MemoryEventRepository struct {
	db *memoryDB
}

// MemoryRegistrationRepository is an in-memory RegistrationRepository.
type MemoryRegistrationRepository struct {
	db *memoryDB
}

// NewMemory returns event and registration repositories sharing one store.
func NewMemory() (*MemoryEventRepository, *MemoryRegistrationRepository) {
	db := &memoryDB{
		events: make(map[string]model.Event),
		regs:   make(map[string]model.Registration),
	}
	return &MemoryEventRepository{db: db}, &MemoryRegistrationRepository{db: db}
}

func (r *MemoryEventRepository) Create(_ context.Context, req model.CreateEventRequest, status model.EventStatus) (*model.Event, error) {
	e := newEvent(req, status)
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.events[e.ID] = *e
	return e, nil
}

// Put stores e as given, replacing any event with the same ID. It lets
// tests and imports seed records with legacy schedule formats.
func (r *MemoryEventRepository) Put(e model.Event) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.events[e.ID] = e
}

func (r *MemoryEventRepository) ListEvents(_ context.Context) ([]model.Event, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	events := make([]model.Event, 0, len(r.db.events))
	for _, e := range r.db.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (r *MemoryEventRepository) GetEvent(_ context.Context, id string) (*model.Event, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	e, ok := r.db.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *MemoryEventRepository) CompareAndSwapStatus(_ context.Context, id string, prev, next model.EventStatus) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.events[id]
	if !ok || e.Status != prev {
		return false, nil
	}
	e.Status = next
	e.UpdatedAt = time.Now().UTC()
	r.db.events[id] = e
	return true, nil
}

func (r *MemoryEventRepository) SetParticipantCount(_ context.Context, id string, count int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.events[id]
	if !ok {
		return ErrNotFound
	}
	e.CurrentParticipants = count
	e.UpdatedAt = time.Now().UTC()
	r.db.events[id] = e
	return nil
}

func (r *MemoryEventRepository) Cancel(_ context.Context, id string) (*model.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status == model.EventCancelled {
		return nil, ErrAlreadyCancelled
	}
	e.Status = model.EventCancelled
	e.UpdatedAt = time.Now().UTC()
	r.db.events[id] = e
	return &e, nil
}

func (r *MemoryRegistrationRepository) Book(_ context.Context, eventID string, req model.RegisterRequest, guard BookingGuard) (*model.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	event, ok := r.db.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	if guard != nil {
		if err := guard(event); err != nil {
			return nil, err
		}
	}

	live := 0
	for _, reg := range r.db.regs {
		if reg.EventID != eventID {
			continue
		}
		if reg.UserEmail == req.UserEmail {
			return nil, ErrAlreadyRegistered
		}
		if reg.Status != model.RegistrationCancelled {
			live++
		}
	}
	if !event.Unlimited() && live >= event.MaxParticipants {
		return nil, ErrEventFull
	}

	reg := newRegistration(eventID, req)
	r.db.regs[reg.ID] = *reg
	return reg, nil
}

// Put stores reg as given, replacing any registration with the same ID.
func (r *MemoryRegistrationRepository) Put(reg model.Registration) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.regs[reg.ID] = reg
}

func (r *MemoryRegistrationRepository) Get(_ context.Context, id string) (*model.Registration, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	reg, ok := r.db.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reg, nil
}

func (r *MemoryRegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.ListByEvents(ctx, []string{eventID})
}

func (r *MemoryRegistrationRepository) ListByEvents(_ context.Context, eventIDs []string) ([]model.Registration, error) {
	want := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = struct{}{}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var regs []model.Registration
	for _, reg := range r.db.regs {
		if _, ok := want[reg.EventID]; ok {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].CreatedAt.Equal(regs[j].CreatedAt) {
			return regs[i].ID < regs[j].ID
		}
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

func (r *MemoryRegistrationRepository) CompareAndSwapStatus(_ context.Context, id string, prev, next model.RegistrationStatus) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	reg, ok := r.db.regs[id]
	if !ok || reg.Status != prev {
		return false, nil
	}
	reg.Status = next
	reg.UpdatedAt = time.Now().UTC()
	r.db.regs[id] = reg
	return true, nil
}

func (r *MemoryRegistrationRepository) UpdatePayment(_ context.Context, id string, status model.PaymentStatus) (*model.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	reg, ok := r.db.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	reg.PaymentStatus = status
	reg.UpdatedAt = time.Now().UTC()
	r.db.regs[id] = reg
	return &reg, nil
}
