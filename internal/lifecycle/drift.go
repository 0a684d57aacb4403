package lifecycle

import (
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/timestamp"
)

// Evaluation is the outcome of classifying one stored event.
type Evaluation struct {
	EventID       string                `json:"event_id"`
	Name          string                `json:"name"`
	StoredStatus  model.EventStatus     `json:"stored_status"`
	DerivedStatus model.EventStatus     `json:"derived_status"`
	Phase         model.Phase           `json:"phase"`
	ShouldUpdate  bool                  `json:"should_update"`
	Reason        string                `json:"reason"`
	Issue         string                `json:"issue,omitempty"`
	Boundaries    *model.Boundaries     `json:"boundaries,omitempty"`
	Result        *model.Classification `json:"classification,omitempty"`

	issue error
}

// Err returns the data problem found on the event, if any: a malformed
// timestamp or out-of-order boundaries.
func (e Evaluation) Err() error {
	return e.issue
}

// Update is a single status change the reconciler should apply.
type Update struct {
	EventID   string            `json:"event_id"`
	OldStatus model.EventStatus `json:"old_status"`
	NewStatus model.EventStatus `json:"new_status"`
	Reason    string            `json:"reason"`
}

// DriftReport lists every evaluated event and the updates derived from them.
type DriftReport struct {
	EvaluatedAt time.Time    `json:"evaluated_at"`
	Evaluations []Evaluation `json:"all_evaluated"`
	Updates     []Update     `json:"updates"`
}

// DetectDrift classifies each event at now and returns the change-set
// needed to bring stored statuses in line. Cancelled events are never
// changed. An event listed more than once is evaluated once.
func DetectDrift(events []model.Event, now time.Time, norm *timestamp.Normalizer) DriftReport {
	report := DriftReport{
		EvaluatedAt: now,
		Evaluations: make([]Evaluation, 0, len(events)),
		Updates:     []Update{},
	}
	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}

		ev := evaluate(e, now, norm)
		report.Evaluations = append(report.Evaluations, ev)
		if ev.ShouldUpdate {
			report.Updates = append(report.Updates, Update{
				EventID:   e.ID,
				OldStatus: e.Status,
				NewStatus: ev.DerivedStatus,
				Reason:    ev.Reason,
			})
		}
	}
	return report
}

func evaluate(e model.Event, now time.Time, norm *timestamp.Normalizer) Evaluation {
	c, b, err := classifyStored(e, now, norm)
	ev := Evaluation{
		EventID:       e.ID,
		Name:          e.Name,
		StoredStatus:  e.Status,
		DerivedStatus: c.Status,
		Phase:         c.Phase,
		Boundaries:    b,
		Result:        &c,
	}
	if err != nil {
		ev.issue = err
		ev.Issue = err.Error()
	}

	switch {
	case e.Status == model.EventCancelled:
		ev.Reason = "cancelled is terminal"
	case c.Status == e.Status:
		ev.Reason = "status current"
	case err != nil:
		ev.ShouldUpdate = true
		ev.Reason = fmt.Sprintf("%s -> %s: invalid schedule", e.Status, c.Status)
	default:
		ev.ShouldUpdate = true
		ev.Reason = fmt.Sprintf("%s -> %s: now in %s phase", e.Status, c.Status, c.Phase)
	}
	return ev
}

// classifyStored classifies a stored event at now. The returned error is
// the schedule problem that forced the invalid-schedule fallback, if any.
func classifyStored(e model.Event, now time.Time, norm *timestamp.Normalizer) (model.Classification, *model.Boundaries, error) {
	if e.Status == model.EventCancelled {
		return Cancelled(), nil, nil
	}
	b, err := norm.Boundaries(e.Schedule)
	if err != nil {
		return invalidSchedule(), nil, err
	}
	if err := CheckBoundaries(b); err != nil {
		return invalidSchedule(), &b, err
	}
	return Classify(b, now), &b, nil
}

// ClassifyStored classifies a stored event at now using the engine's
// normalizer. A non-nil error describes why the schedule could not be
// trusted; the classification is still usable.
func (e *Engine) ClassifyStored(ev model.Event, now time.Time) (model.Classification, error) {
	c, _, err := classifyStored(ev, now, e.norm)
	return c, err
}
