// Package timestamp turns the date representations found on event records
// into a single unambiguous instant.
//
// ISO-8601 year-first strings are authoritative. Slash-delimited dates are
// read with one fixed component order chosen at configuration time; the
// order is never inferred from the value itself, so "05/06/2025" means the
// same day on every record.
package timestamp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
)

// ErrMalformedTimestamp is returned when a value cannot be normalized.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// DateOrder selects how the first two components of a slash date are read.
type DateOrder int

const (
	// DayFirst reads "DD/MM/YYYY". This is the deployment default.
	DayFirst DateOrder = iota
	// MonthFirst reads "MM/DD/YYYY".
	MonthFirst
)

// ParseDateOrder maps a configuration value to a DateOrder.
func ParseDateOrder(s string) (DateOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day-first", "dmy":
		return DayFirst, nil
	case "month-first", "mdy":
		return MonthFirst, nil
	}
	return DayFirst, fmt.Errorf("unknown date order %q", s)
}

func (o DateOrder) String() string {
	if o == MonthFirst {
		return "month-first"
	}
	return "day-first"
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

var clockLayouts = []string{"15:04:05", "15:04"}

// Normalizer converts raw timestamp values into instants.
type Normalizer struct {
	Order    DateOrder
	Location *time.Location
}

// New returns a Normalizer using the given order. Zone-less values are
// read in loc, or UTC when loc is nil.
func New(order DateOrder, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Order: order, Location: loc}
}

func (n *Normalizer) location() *time.Location {
	if n == nil || n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize converts v into an instant. Accepted inputs are strings,
// time.Time and *time.Time; anything else is malformed.
func (n *Normalizer) Normalize(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, malformed(v, "zero instant")
		}
		return t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, malformed(v, "missing instant")
		}
		return *t, nil
	case string:
		return n.parseString(t)
	default:
		return time.Time{}, malformed(v, fmt.Sprintf("unsupported type %T", v))
	}
}

// Boundaries normalizes all three schedule fields. The first failure is
// returned and names the offending field.
func (n *Normalizer) Boundaries(s model.Schedule) (model.Boundaries, error) {
	var b model.Boundaries
	var err error
	if b.RegistrationDeadline, err = n.Normalize(s.RegistrationDeadline); err != nil {
		return model.Boundaries{}, fmt.Errorf("registration_deadline: %w", err)
	}
	if b.StartDate, err = n.Normalize(s.StartDate); err != nil {
		return model.Boundaries{}, fmt.Errorf("start_date: %w", err)
	}
	if b.EndDate, err = n.Normalize(s.EndDate); err != nil {
		return model.Boundaries{}, fmt.Errorf("end_date: %w", err)
	}
	return b, nil
}

func (n *Normalizer) parseString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, malformed(raw, "empty value")
	}
	if strings.Contains(s, "/") {
		return n.parseSlash(s)
	}
	if !yearFirst(s) {
		return time.Time{}, malformed(raw, "not an ISO-8601 year-first value")
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, n.location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, malformed(raw, "unrecognized ISO-8601 layout")
}

// parseSlash reads "A/B/YYYY" with an optional " HH:MM[:SS]" suffix.
func (n *Normalizer) parseSlash(s string) (time.Time, error) {
	datePart, clockPart, _ := strings.Cut(s, " ")
	parts := strings.Split(datePart, "/")
	if len(parts) != 3 {
		return time.Time{}, malformed(s, "slash date needs day, month and year")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		if !digits(p) {
			return time.Time{}, malformed(s, "non-numeric date component")
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, malformed(s, "non-numeric date component")
		}
		nums[i] = v
	}
	if len(parts[2]) != 4 {
		return time.Time{}, malformed(s, "year must have four digits")
	}

	day, month, year := nums[0], nums[1], nums[2]
	if n != nil && n.Order == MonthFirst {
		day, month = nums[1], nums[0]
	}
	if day < 1 || day > 31 {
		return time.Time{}, malformed(s, "day out of range")
	}
	if month < 1 || month > 12 {
		return time.Time{}, malformed(s, "month out of range")
	}

	var hour, minute, sec int
	if clockPart = strings.TrimSpace(clockPart); clockPart != "" {
		clock, err := parseClock(clockPart)
		if err != nil {
			return time.Time{}, malformed(s, "invalid time of day")
		}
		hour, minute, sec = clock.Hour(), clock.Minute(), clock.Second()
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, n.location())
	// time.Date rolls 31/02 over into March.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, malformed(s, "no such calendar date")
	}
	return t, nil
}

func parseClock(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// yearFirst reports whether s starts with a four-digit year and a dash.
func yearFirst(s string) bool {
	return len(s) >= 5 && s[4] == '-' && digits(s[:4])
}

// digits reports whether s is a non-empty run of ASCII digits.
func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func malformed(v any, reason string) error {
	return fmt.Errorf("%w: %v: %s", ErrMalformedTimestamp, v, reason)
}
