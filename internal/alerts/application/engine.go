package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	alerts "homeclimate/internal/alerts/domain"
	detection "homeclimate/internal/detection/domain"
	sampling "homeclimate/internal/sampling/domain"
)

const (
	// defaultOutlierDurationMinutes flags stuck-open style events.
	defaultOutlierDurationMinutes = 120.0
	// sustainedHighSpan is how long humidity must sit above the high
	// threshold with no event before the detector looks mis-thresholded.
	sustainedHighSpan = 30 * time.Minute
	// strayRuntimeSpan is how much actuator on-time outside events
	// suggests a sensor/actuator desync.
	strayRuntimeSpan = 30 * time.Minute
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Engine scans recent history for anomalies. Read-only: it never
// mutates events or thresholds.
type Engine struct {
	events  detection.EventRepository
	samples sampling.SampleQuery

	outlierDurationMinutes float64
	clock                  Clock
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithOutlierDuration overrides the event duration outlier threshold.
func WithOutlierDuration(minutes float64) EngineOption {
	return func(e *Engine) {
		if minutes > 0 {
			e.outlierDurationMinutes = minutes
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine constructs an alert engine.
func NewEngine(events detection.EventRepository, samples sampling.SampleQuery, opts ...EngineOption) (*Engine, error) {
	if events == nil {
		return nil, errors.New("alerts: nil event repo")
	}
	if samples == nil {
		return nil, errors.New("alerts: nil sample query")
	}
	engine := &Engine{
		events:                 events,
		samples:                samples,
		outlierDurationMinutes: defaultOutlierDurationMinutes,
		clock:                  systemClock{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Scan checks the trailing window and returns one alert per finding.
func (e *Engine) Scan(ctx context.Context, days int, thresholds detection.ThresholdSet) ([]alerts.Alert, error) {
	if e == nil {
		return nil, errors.New("alerts: nil engine")
	}
	if days <= 0 {
		days = 7
	}
	since := e.clock.Now().UTC().AddDate(0, 0, -days)

	events, err := e.events.ListSince(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	samples, err := e.samples.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}

	var found []alerts.Alert
	found = append(found, e.longEvents(events)...)
	found = append(found, e.highHumidityWithoutEvent(samples, events, thresholds)...)
	found = append(found, e.runtimeWithoutEvent(samples, events)...)
	return found, nil
}

// longEvents flags events whose duration exceeds the outlier
// threshold, e.g. a door left open next to a running shower.
func (e *Engine) longEvents(events []detection.Event) []alerts.Alert {
	var found []alerts.Alert
	for _, event := range events {
		if event.DurationMinutes <= e.outlierDurationMinutes {
			continue
		}
		found = append(found, alerts.Alert{
			Severity: alerts.SeverityMedium,
			Title:    "Unusually long usage event",
			Message: fmt.Sprintf("event %s lasted %.0f minutes (threshold %.0f); check for a stuck sensor or blocked ventilation",
				event.ID, event.DurationMinutes, e.outlierDurationMinutes),
		})
	}
	return found
}

// highHumidityWithoutEvent flags sustained readings above the high
// threshold with no overlapping event; the detector may be
// mis-thresholded.
func (e *Engine) highHumidityWithoutEvent(samples []sampling.Sample, events []detection.Event, thresholds detection.ThresholdSet) []alerts.Alert {
	var runStart time.Time
	var runLast time.Time

	flag := func() *alerts.Alert {
		if runStart.IsZero() || runLast.Sub(runStart) < sustainedHighSpan {
			return nil
		}
		return &alerts.Alert{
			Severity: alerts.SeverityHigh,
			Title:    "Sustained high humidity without a detected event",
			Message: fmt.Sprintf("humidity stayed above %.0f%% from %s to %s with no event recorded; detection thresholds may be off",
				thresholds.HumidityHigh, runStart.Format(time.RFC3339), runLast.Format(time.RFC3339)),
		}
	}

	var found []alerts.Alert
	for _, sample := range samples {
		if sample.Humidity == nil || *sample.Humidity < thresholds.HumidityHigh || insideEvent(sample.Timestamp, events) {
			if alert := flag(); alert != nil {
				found = append(found, *alert)
			}
			runStart, runLast = time.Time{}, time.Time{}
			continue
		}
		if runStart.IsZero() {
			runStart = sample.Timestamp
		}
		runLast = sample.Timestamp
	}
	if alert := flag(); alert != nil {
		found = append(found, *alert)
	}
	return found
}

// runtimeWithoutEvent flags actuator on-time with no matching event,
// a possible sensor/actuator desync.
func (e *Engine) runtimeWithoutEvent(samples []sampling.Sample, events []detection.Event) []alerts.Alert {
	var stray time.Duration
	var last time.Time
	for _, sample := range samples {
		if sample.DehumidifierOn != nil && *sample.DehumidifierOn && !insideEvent(sample.Timestamp, events) {
			if !last.IsZero() {
				stray += sample.Timestamp.Sub(last)
			}
		}
		last = sample.Timestamp
	}
	if stray < strayRuntimeSpan {
		return nil
	}
	return []alerts.Alert{{
		Severity: alerts.SeverityLow,
		Title:    "Dehumidifier runtime outside events",
		Message: fmt.Sprintf("the dehumidifier ran for %.0f minutes with no matching event; sensor and actuator may be out of sync",
			stray.Minutes()),
	}}
}

func insideEvent(t time.Time, events []detection.Event) bool {
	for _, event := range events {
		if !t.Before(event.StartTime) && !t.After(event.EndTime) {
			return true
		}
	}
	return false
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
