package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	detection "homeclimate/internal/detection/domain"
)

// ManualRecorder backfills events the detector missed. Validation
// runs before any write; rejected entries never reach persistence.
type ManualRecorder struct {
	events detection.EventRepository
}

// NewManualRecorder constructs a ManualRecorder.
func NewManualRecorder(events detection.EventRepository) (*ManualRecorder, error) {
	if events == nil {
		return nil, errors.New("manual recorder: nil event repo")
	}
	return &ManualRecorder{events: events}, nil
}

// ManualEntry is a backfill request.
type ManualEntry struct {
	StartTime    time.Time
	EndTime      time.Time
	PeakHumidity float64
	Notes        string
}

// Record validates and persists a manual event. Overlap with any
// existing event, inverted ranges and excessive durations are
// rejected with ErrInvalidManualEvent.
func (r *ManualRecorder) Record(ctx context.Context, entry ManualEntry) (*detection.Event, error) {
	if r == nil {
		return nil, errors.New("manual recorder: nil")
	}
	if entry.StartTime.IsZero() || entry.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: missing time bounds", detection.ErrInvalidManualEvent)
	}
	if !entry.EndTime.After(entry.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", detection.ErrInvalidManualEvent)
	}
	if entry.EndTime.Sub(entry.StartTime) > detection.MaxManualEventDuration {
		return nil, fmt.Errorf("%w: duration exceeds %s", detection.ErrInvalidManualEvent, detection.MaxManualEventDuration)
	}
	if entry.PeakHumidity <= 0 || entry.PeakHumidity > 100 {
		return nil, fmt.Errorf("%w: peak_humidity out of range", detection.ErrInvalidManualEvent)
	}

	existing, err := r.events.FindOverlapping(ctx, entry.StartTime.UTC(), entry.EndTime.UTC())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: overlaps event %s", detection.ErrInvalidManualEvent, existing.ID)
	}

	event := detection.Event{
		ID:              uuid.NewString(),
		StartTime:       entry.StartTime.UTC(),
		EndTime:         entry.EndTime.UTC(),
		PeakHumidity:    entry.PeakHumidity,
		AvgHumidity:     entry.PeakHumidity,
		DurationMinutes: entry.EndTime.Sub(entry.StartTime).Minutes(),
		Manual:          true,
		Notes:           entry.Notes,
	}
	if err := r.events.Append(ctx, event); err != nil {
		return nil, err
	}
	return &event, nil
}
