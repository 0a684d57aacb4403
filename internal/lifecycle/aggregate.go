package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// DefaultCountedPaymentStatuses are the payment states that take a seat.
var DefaultCountedPaymentStatuses = []model.PaymentStatus{
	model.PaymentCompleted,
	model.PaymentPaid,
	model.PaymentRegistered,
}

// CountedSet is the set of payment statuses counted as participants.
type CountedSet map[model.PaymentStatus]struct{}

// NewCountedSet builds a CountedSet; with no statuses it falls back to
// DefaultCountedPaymentStatuses.
func NewCountedSet(statuses ...model.PaymentStatus) CountedSet {
	if len(statuses) == 0 {
		statuses = DefaultCountedPaymentStatuses
	}
	set := make(CountedSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// ParseCountedSet reads a comma-separated list such as "completed,paid".
func ParseCountedSet(raw []string) (CountedSet, error) {
	statuses := make([]model.PaymentStatus, 0, len(raw))
	for _, r := range raw {
		s := model.PaymentStatus(strings.ToLower(strings.TrimSpace(r)))
		if s == "" {
			continue
		}
		switch s {
		case model.PaymentPending, model.PaymentCompleted, model.PaymentFailed,
			model.PaymentRefunded, model.PaymentPaid, model.PaymentRegistered:
		default:
			return nil, fmt.Errorf("unknown payment status %q", r)
		}
		statuses = append(statuses, s)
	}
	return NewCountedSet(statuses...), nil
}

// Counts reports whether a registration with payment status p takes a seat.
func (c CountedSet) Counts(p model.PaymentStatus) bool {
	_, ok := c[p]
	return ok
}

// CountParticipants recounts eventID's participants from its registrations.
// Registrations for other events are ignored.
func CountParticipants(eventID string, regs []model.Registration, counted CountedSet) int {
	n := 0
	for _, r := range regs {
		if r.EventID == eventID && counted.Counts(r.PaymentStatus) {
			n++
		}
	}
	return n
}

// AggregateResult is the outcome of recounting one event.
type AggregateResult struct {
	EventID  string `json:"event_id"`
	OldCount int    `json:"old_count"`
	NewCount int    `json:"new_count"`
	Changed  bool   `json:"changed"`
	Error    string `json:"error,omitempty"`
}

// RefreshAggregates recounts the participants of one event, or of every
// event when eventID is empty, and replaces the stored counts.
func (e *Engine) RefreshAggregates(ctx context.Context, eventID string) (_ []AggregateResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lifecycle.RefreshAggregates")
	defer func() {
		endSpan(span, err)
		e.metrics.ObservePass("refresh_aggregates", time.Since(start), err)
	}()

	var events []model.Event
	if eventID != "" {
		ev, err := e.events.GetEvent(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("get event %s: %w", eventID, err)
		}
		events = []model.Event{*ev}
	} else {
		events, err = e.events.ListEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list events: %v", ErrStorageUnavailable, err)
		}
	}
	return e.refresh(ctx, events)
}

func (e *Engine) refresh(ctx context.Context, events []model.Event) ([]AggregateResult, error) {
	seen := make(map[string]struct{}, len(events))
	unique := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		unique = append(unique, ev)
	}
	results := make([]AggregateResult, len(unique))
	if len(unique) == 0 {
		return results, nil
	}

	regs, err := e.regs.ListByEvents(ctx, sortedKeys(seen))
	if err != nil {
		return nil, fmt.Errorf("%w: list registrations: %v", ErrStorageUnavailable, err)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, ev := range unique {
		g.Go(func() error {
			results[i] = e.refreshOne(ctx, ev, CountParticipants(ev.ID, regs, e.counted))
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (e *Engine) refreshOne(ctx context.Context, ev model.Event, count int) AggregateResult {
	unlock := e.locks.Lock("event:" + ev.ID)
	defer unlock()

	res := AggregateResult{
		EventID:  ev.ID,
		OldCount: ev.CurrentParticipants,
		NewCount: count,
		Changed:  count != ev.CurrentParticipants,
	}
	if err := e.events.SetParticipantCount(ctx, ev.ID, count); err != nil {
		res.Changed = false
		res.Error = fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error()
		e.logger.Error("participant count write failed", "event_id", ev.ID, "error", err)
		e.metrics.IncAggregateRefresh(string(OutcomeFailed))
		return res
	}
	if res.Changed {
		e.logger.Info("participant count refreshed",
			"event_id", ev.ID, "old_count", res.OldCount, "new_count", res.NewCount)
	}
	e.metrics.IncAggregateRefresh(string(OutcomeUpdated))
	return res
}
