package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// ResolveRegistrationStatus derives a registration's status from its
// event's current classification and its own payment state. The first
// matching rule wins:
//
//  1. event cancelled                                   -> cancelled
//  2. payment failed or refunded, registration closed   -> cancelled
//  3. registration not open yet (invalid schedule)      -> registered
//  4. payment completed                                 -> confirmed
//  5. otherwise                                         -> registered
func ResolveRegistrationStatus(parent model.Classification, payment model.PaymentStatus) model.RegistrationStatus {
	switch {
	case parent.Status == model.EventCancelled:
		return model.RegistrationCancelled
	case paymentLost(payment) && registrationClosed(parent.Phase):
		return model.RegistrationCancelled
	case parent.Phase == model.PhaseInvalidSchedule:
		return model.RegistrationRegistered
	case paymentSettled(payment):
		return model.RegistrationConfirmed
	default:
		return model.RegistrationRegistered
	}
}

func paymentLost(p model.PaymentStatus) bool {
	return p == model.PaymentFailed || p == model.PaymentRefunded
}

func paymentSettled(p model.PaymentStatus) bool {
	return p == model.PaymentCompleted || p == model.PaymentPaid
}

func registrationClosed(p model.Phase) bool {
	switch p {
	case model.PhasePreEventClosed, model.PhaseInProgress, model.PhasePostEvent:
		return true
	}
	return false
}

// RegistrationItem is the per-registration detail of a sweep.
type RegistrationItem struct {
	RegistrationID string                   `json:"registration_id"`
	EventID        string                   `json:"event_id"`
	OldStatus      model.RegistrationStatus `json:"old_status"`
	NewStatus      model.RegistrationStatus `json:"new_status"`
	Outcome        Outcome                  `json:"outcome"`
	Error          string                   `json:"error,omitempty"`
}

// SweepResult summarizes a registration sweep.
type SweepResult struct {
	Evaluated int                `json:"evaluated"`
	Updated   int                `json:"updated"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Details   []RegistrationItem `json:"details"`
}

// Sweep re-derives the status of every registration of the given events,
// or of all events when none are given, and writes the ones that drifted.
func (e *Engine) Sweep(ctx context.Context, eventIDs ...string) (_ *SweepResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lifecycle.Sweep")
	defer func() {
		endSpan(span, err)
		e.metrics.ObservePass("sweep", time.Since(start), err)
	}()

	var events []model.Event
	if len(eventIDs) == 0 {
		events, err = e.events.ListEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list events: %v", ErrStorageUnavailable, err)
		}
	} else {
		for _, id := range eventIDs {
			ev, err := e.events.GetEvent(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get event %s: %w", id, err)
			}
			events = append(events, *ev)
		}
	}

	now := e.clock()
	parents := make(map[string]model.Classification, len(events))
	for _, ev := range events {
		c, _, _ := classifyStored(ev, now, e.norm)
		parents[ev.ID] = c
	}
	return e.sweep(ctx, parents)
}

func (e *Engine) sweep(ctx context.Context, parents map[string]model.Classification) (*SweepResult, error) {
	result := &SweepResult{Details: []RegistrationItem{}}
	ids := sortedKeys(parents)
	if len(ids) == 0 {
		return result, nil
	}

	regs, err := e.regs.ListByEvents(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("%w: list registrations: %v", ErrStorageUnavailable, err)
	}

	var pending []RegistrationItem
	for _, r := range regs {
		parent, ok := parents[r.EventID]
		if !ok {
			continue
		}
		result.Evaluated++
		next := ResolveRegistrationStatus(parent, r.PaymentStatus)
		if next == r.Status {
			continue
		}
		pending = append(pending, RegistrationItem{
			RegistrationID: r.ID,
			EventID:        r.EventID,
			OldStatus:      r.Status,
			NewStatus:      next,
		})
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range pending {
		g.Go(func() error {
			e.applyRegistrationUpdate(ctx, &pending[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range pending {
		switch item.Outcome {
		case OutcomeUpdated:
			result.Updated++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeFailed:
			result.Failed++
		}
		result.Details = append(result.Details, item)
	}
	return result, nil
}

func (e *Engine) applyRegistrationUpdate(ctx context.Context, item *RegistrationItem) {
	unlock := e.locks.Lock("registration:" + item.RegistrationID)
	defer unlock()

	// The write is conditional on status only. A payment change landing
	// after the read can leave a status derived from the old payment; the
	// next pass re-derives every registration and corrects it.
	ok, err := e.regs.CompareAndSwapStatus(ctx, item.RegistrationID, item.OldStatus, item.NewStatus)
	switch {
	case err != nil:
		item.Outcome = OutcomeFailed
		item.Error = fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error()
		e.logger.Error("registration status write failed",
			"registration_id", item.RegistrationID, "event_id", item.EventID, "error", err)
	case !ok:
		item.Outcome = OutcomeSkipped
		item.Error = ErrWriteConflict.Error()
		e.logger.Info("registration status write skipped: stored status moved",
			"registration_id", item.RegistrationID, "event_id", item.EventID)
	default:
		item.Outcome = OutcomeUpdated
		e.logger.Debug("registration status updated",
			"registration_id", item.RegistrationID, "old_status", item.OldStatus, "new_status", item.NewStatus)
	}
	e.metrics.IncRegistrationWrite(string(item.Outcome))
}
