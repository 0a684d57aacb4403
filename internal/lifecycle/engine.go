package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/metrics"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/timestamp"
)

const defaultConcurrency = 8

var tracer = otel.Tracer("github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle")

// EventStore is the event persistence the engine needs.
type EventStore interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// CompareAndSwapStatus writes next only if the stored status still
	// equals prev, and reports whether it did.
	CompareAndSwapStatus(ctx context.Context, id string, prev, next model.EventStatus) (bool, error)
	SetParticipantCount(ctx context.Context, id string, count int) error
}

// RegistrationStore is the registration persistence the engine needs.
type RegistrationStore interface {
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error)
	CompareAndSwapStatus(ctx context.Context, id string, prev, next model.RegistrationStatus) (bool, error)
}

// Recorder keeps the summary of completed passes.
type Recorder interface {
	Record(ctx context.Context, result *RunResult) error
}

// Outcome is the result of a single conditional write.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeFlagged Outcome = "flagged"
)

// ItemResult is the per-event detail of a reconciliation pass.
type ItemResult struct {
	EventID   string            `json:"event_id"`
	OldStatus model.EventStatus `json:"old_status"`
	NewStatus model.EventStatus `json:"new_status"`
	Outcome   Outcome           `json:"outcome"`
	Reason    string            `json:"reason"`
	Issue     string            `json:"issue,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// RunResult summarizes a reconciliation pass.
type RunResult struct {
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	TotalEvaluated int               `json:"total_evaluated"`
	Updated        int               `json:"updated"`
	Skipped        int               `json:"skipped"`
	Failed         int               `json:"failed"`
	Flagged        int               `json:"flagged"`
	Details        []ItemResult      `json:"details"`
	Cascade        *SweepResult      `json:"cascade,omitempty"`
	Aggregates     []AggregateResult `json:"aggregates,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// Preview is a dry run: what a pass would change, without writing.
type Preview struct {
	EvaluatedAt      time.Time    `json:"evaluated_at"`
	NeedsUpdateCount int          `json:"needs_update_count"`
	Updates          []Update     `json:"updates"`
	AllEvaluated     []Evaluation `json:"all_evaluated"`
}

// Engine runs reconciliation passes against the stores.
type Engine struct {
	events      EventStore
	regs        RegistrationStore
	norm        *timestamp.Normalizer
	counted     CountedSet
	clock       func() time.Time
	logger      *logger.Logger
	metrics     *metrics.Metrics
	recorder    Recorder
	concurrency int
	locks       *keyLock
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now; tests pin the pass instant with it.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithCountedSet(c CountedSet) Option {
	return func(e *Engine) { e.counted = c }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithConcurrency bounds the number of writes in flight.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(events EventStore, regs RegistrationStore, norm *timestamp.Normalizer, opts ...Option) (*Engine, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if regs == nil {
		return nil, errors.New("registration store is required")
	}
	if norm == nil {
		norm = timestamp.New(timestamp.DayFirst, time.UTC)
	}

	e := &Engine{
		events:      events,
		regs:        regs,
		norm:        norm,
		counted:     NewCountedSet(),
		clock:       time.Now,
		logger:      logger.Discard(),
		concurrency: defaultConcurrency,
		locks:       newKeyLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Now returns the engine's notion of the current instant.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Normalizer returns the normalizer used for event schedules.
func (e *Engine) Normalizer() *timestamp.Normalizer {
	return e.norm
}

// Counted returns the payment statuses counted as participants.
func (e *Engine) Counted() CountedSet {
	return e.counted
}

// Preview classifies every event and reports the updates a pass would make.
func (e *Engine) Preview(ctx context.Context) (_ *Preview, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lifecycle.Preview")
	defer func() {
		endSpan(span, err)
		e.metrics.ObservePass("preview", time.Since(start), err)
	}()

	events, err := e.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrStorageUnavailable, err)
	}

	report := DetectDrift(events, e.clock(), e.norm)
	e.metrics.SetDrift(len(report.Updates), countFlagged(report.Evaluations))
	span.SetAttributes(
		attribute.Int("events.evaluated", len(report.Evaluations)),
		attribute.Int("events.drifted", len(report.Updates)),
	)

	return &Preview{
		EvaluatedAt:      report.EvaluatedAt,
		NeedsUpdateCount: len(report.Updates),
		Updates:          report.Updates,
		AllEvaluated:     report.Evaluations,
	}, nil
}

// Run performs a reconciliation pass: detect drift, apply each update with
// a conditional write, then re-derive every registration status and
// recount every event's participants. Per-item failures are reported in the
// result; the only error returned is a failure to read the events at all.
func (e *Engine) Run(ctx context.Context) (_ *RunResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lifecycle.Run")
	defer func() {
		endSpan(span, err)
		e.metrics.ObservePass("run", time.Since(start), err)
	}()

	now := e.clock()
	result := &RunResult{StartedAt: now, Details: []ItemResult{}}

	events, err := e.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrStorageUnavailable, err)
	}

	report := DetectDrift(events, now, e.norm)
	result.TotalEvaluated = len(report.Evaluations)

	classified := make(map[string]model.Classification, len(report.Evaluations))
	updating := make(map[string]struct{}, len(report.Updates))
	for _, u := range report.Updates {
		updating[u.EventID] = struct{}{}
	}
	for _, ev := range report.Evaluations {
		classified[ev.EventID] = *ev.Result
		if ev.Err() == nil {
			continue
		}
		result.Flagged++
		e.logger.Warn("event schedule integrity warning",
			"event_id", ev.EventID, "stored_status", ev.StoredStatus, "error", ev.Err())
		if _, ok := updating[ev.EventID]; !ok {
			result.Details = append(result.Details, ItemResult{
				EventID:   ev.EventID,
				OldStatus: ev.StoredStatus,
				NewStatus: ev.DerivedStatus,
				Outcome:   OutcomeFlagged,
				Reason:    ev.Reason,
				Issue:     ev.Issue,
			})
		}
	}
	e.metrics.SetDrift(len(report.Updates), result.Flagged)

	items := e.applyEventUpdates(ctx, report)
	unsettled := make(map[string]struct{})
	for _, item := range items {
		switch item.Outcome {
		case OutcomeUpdated:
			result.Updated++
		case OutcomeSkipped:
			result.Skipped++
			unsettled[item.EventID] = struct{}{}
		case OutcomeFailed:
			result.Failed++
			unsettled[item.EventID] = struct{}{}
		}
		result.Details = append(result.Details, item)
	}

	// Registrations and counts of every event are re-derived on each pass,
	// so work a previous pass failed to finish is picked up here. Events
	// whose own status write did not land wait for the next pass.
	parents := make(map[string]model.Classification, len(classified))
	for id, c := range classified {
		if _, ok := unsettled[id]; !ok {
			parents[id] = c
		}
	}
	sweep, err := e.sweep(ctx, parents)
	if err != nil {
		result.Warnings = append(result.Warnings, "cascade: "+err.Error())
	}
	result.Cascade = sweep

	aggs, err := e.refresh(ctx, events)
	if err != nil {
		result.Warnings = append(result.Warnings, "aggregates: "+err.Error())
	}
	result.Aggregates = aggs

	e.logger.Info("reconciliation pass complete",
		"evaluated", result.TotalEvaluated, "updated", result.Updated,
		"skipped", result.Skipped, "failed", result.Failed, "flagged", result.Flagged,
		"registrations_updated", sweep.Updated, "warnings", len(result.Warnings))

	result.FinishedAt = e.clock()
	span.SetAttributes(
		attribute.Int("events.evaluated", result.TotalEvaluated),
		attribute.Int("events.updated", result.Updated),
		attribute.Int("events.skipped", result.Skipped),
		attribute.Int("events.failed", result.Failed),
	)

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, result); err != nil {
			e.logger.Warn("failed to record reconciliation pass", "error", err)
		}
	}
	return result, nil
}

func (e *Engine) applyEventUpdates(ctx context.Context, report DriftReport) []ItemResult {
	items := make([]ItemResult, len(report.Updates))
	issues := make(map[string]string)
	for _, ev := range report.Evaluations {
		if ev.Issue != "" {
			issues[ev.EventID] = ev.Issue
		}
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, u := range report.Updates {
		g.Go(func() error {
			items[i] = e.applyEventUpdate(ctx, u)
			items[i].Issue = issues[u.EventID]
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (e *Engine) applyEventUpdate(ctx context.Context, u Update) ItemResult {
	unlock := e.locks.Lock("event:" + u.EventID)
	defer unlock()

	item := ItemResult{
		EventID:   u.EventID,
		OldStatus: u.OldStatus,
		NewStatus: u.NewStatus,
		Reason:    u.Reason,
	}

	ok, err := e.events.CompareAndSwapStatus(ctx, u.EventID, u.OldStatus, u.NewStatus)
	switch {
	case err != nil:
		item.Outcome = OutcomeFailed
		item.Error = fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error()
		e.logger.Error("event status write failed",
			"event_id", u.EventID, "old_status", u.OldStatus, "new_status", u.NewStatus, "error", err)
	case !ok:
		item.Outcome = OutcomeSkipped
		item.Error = ErrWriteConflict.Error()
		e.logger.Info("event status write skipped: stored status moved",
			"event_id", u.EventID, "old_status", u.OldStatus, "new_status", u.NewStatus)
	default:
		item.Outcome = OutcomeUpdated
		e.logger.Info("event status updated",
			"event_id", u.EventID, "old_status", u.OldStatus, "new_status", u.NewStatus)
	}
	e.metrics.IncEventWrite(string(item.Outcome))
	return item
}

func countFlagged(evs []Evaluation) int {
	n := 0
	for _, ev := range evs {
		if ev.Err() != nil {
			n++
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
