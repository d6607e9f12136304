package sampling

import (
	"context"
	"time"
)

// Sample is one normalized tick of sensor readings. Fields for
// missing sensors stay nil; values are never fabricated. A Sample is
// immutable after creation.
type Sample struct {
	Timestamp      time.Time
	Humidity       *float64
	Temperature    *float64
	Motion         *bool
	DoorOpen       *bool
	WindowOpen     *bool
	DehumidifierOn *bool
}

// HasHumidity reports whether the humidity sensor reported this tick.
func (s Sample) HasHumidity() bool { return s.Humidity != nil }

// SampleRepository persists samples append-only.
type SampleRepository interface {
	Insert(ctx context.Context, sample Sample) error
}

// SampleQuery loads historical samples for the learner and the alert
// engine.
type SampleQuery interface {
	// ListSince returns samples at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]Sample, error)
	// BaselineHumidity returns humidity readings outside the given
	// event spans, for ambient baseline estimation.
	BaselineHumidity(ctx context.Context, since time.Time, exclude []TimeSpan) ([]float64, error)
}

// TimeSpan is a closed time range.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the span.
func (ts TimeSpan) Contains(t time.Time) bool {
	return !t.Before(ts.Start) && !t.After(ts.End)
}
