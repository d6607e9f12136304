package detection

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an event does not exist.
var ErrNotFound = errors.New("detection: event not found")

// ErrInvalidManualEvent is returned when a manual entry fails
// validation. The reason string on the result carries the specifics.
var ErrInvalidManualEvent = errors.New("detection: invalid manual event")

// MaxManualEventDuration caps backfilled entries so pathological
// spans cannot skew the learner.
const MaxManualEventDuration = 2 * time.Hour

// Event is a finalized, non-overlapping span of elevated humidity
// attributed to a single usage episode. Immutable once finalized;
// manual correction goes through the recorder, never through mutation.
type Event struct {
	ID                         string
	StartTime                  time.Time
	EndTime                    time.Time
	PeakHumidity               float64
	AvgHumidity                float64
	DurationMinutes            float64
	DehumidifierRuntimeMinutes *float64
	Manual                     bool
	Notes                      string
}

// Validate checks event invariants.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event: empty id")
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return errors.New("event: zero time bounds")
	}
	if !e.EndTime.After(e.StartTime) {
		return errors.New("event: end_time must be after start_time")
	}
	if e.PeakHumidity < e.AvgHumidity {
		return errors.New("event: peak below average")
	}
	return nil
}

// Span returns the event time range.
func (e Event) Span() (time.Time, time.Time) {
	return e.StartTime, e.EndTime
}

// Overlaps reports whether the event intersects [start, end].
func (e Event) Overlaps(start, end time.Time) bool {
	return e.StartTime.Before(end) && start.Before(e.EndTime)
}

// EventRepository persists finalized events append-only.
type EventRepository interface {
	Append(ctx context.Context, event Event) error
	// ListSince returns finalized events starting at or after since,
	// newest first, capped at limit (0 means no cap).
	ListSince(ctx context.Context, since time.Time, limit int) ([]Event, error)
	// FindOverlapping returns any event intersecting [start, end].
	FindOverlapping(ctx context.Context, start, end time.Time) (*Event, error)
}
