package application

import (
	"errors"
	"time"

	"github.com/google/uuid"

	detection "homeclimate/internal/detection/domain"
	sampling "homeclimate/internal/sampling/domain"
)

// Detector is the hysteresis state machine. Process is a pure
// function of (state, sample, thresholds); the caller owns the
// DetectorState value and feeds samples one at a time.
type Detector struct {
	riseRatePerMinute float64
	riseRateSamples   int
	maxSampleGap      time.Duration
}

// NewDetector constructs a Detector.
func NewDetector(riseRatePerMinute float64, riseRateSamples int, maxSampleGap time.Duration) (*Detector, error) {
	if riseRateSamples < 2 {
		riseRateSamples = 2
	}
	if maxSampleGap <= 0 {
		return nil, errors.New("detector: max sample gap must be positive")
	}
	return &Detector{
		riseRatePerMinute: riseRatePerMinute,
		riseRateSamples:   riseRateSamples,
		maxSampleGap:      maxSampleGap,
	}, nil
}

// GapNotice reports a forced finalization after the humidity stream
// went silent longer than the configured maximum.
type GapNotice struct {
	LastGoodSample time.Time
	Gap            time.Duration
}

// TickResult is the outcome of one Process call.
type TickResult struct {
	State     detection.DetectorState
	Finalized *detection.Event
	Gap       *GapNotice
}

// Process advances the state machine by one sample. At most one event
// is open at any instant; a finalized event is returned exactly once.
func (d *Detector) Process(state detection.DetectorState, sample sampling.Sample, thresholds detection.ThresholdSet) TickResult {
	result := TickResult{State: state}

	// Sensor-offline guard: force-finalize rather than leaving an
	// event open indefinitely.
	if state.Open != nil && !state.LastSampleAt.IsZero() {
		gap := sample.Timestamp.Sub(state.LastSampleAt)
		if gap > d.maxSampleGap {
			result.Finalized = finalize(state.Open, state.LastSampleAt)
			result.Gap = &GapNotice{LastGoodSample: state.LastSampleAt, Gap: gap}
			result.State = detection.DetectorState{
				State:        detection.StateIdle,
				LastSampleAt: state.LastSampleAt,
				Recent:       nil,
			}
			state = result.State
		}
	}

	if !sample.HasHumidity() {
		// Humidity-only degradation: motion/door are corroborating
		// signals, never required, but without humidity there is no
		// transition to evaluate.
		return result
	}

	humidity := *sample.Humidity
	next := state
	next.Recent = appendRecent(state.Recent, detection.HumidityPoint{At: sample.Timestamp, Value: humidity}, d.riseRateSamples)

	if next.Open != nil {
		accrueRuntime(next.Open, sample, state.LastSampleAt)
	}

	switch state.State {
	case detection.StateIdle:
		if humidity >= thresholds.HumidityHigh || d.risingFast(next.Recent) {
			next.State = detection.StateActive
			next.Open = detection.NewOpenEvent(sample.Timestamp, humidity)
			next.CooldownSince = time.Time{}
		}

	case detection.StateActive:
		next.Open.Observe(humidity)
		if humidity < thresholds.HumidityLow {
			next.State = detection.StateCooldown
			next.CooldownSince = sample.Timestamp
		}

	case detection.StateCooldown:
		next.Open.Observe(humidity)
		delay := time.Duration(thresholds.DelayMinutes * float64(time.Minute))
		switch {
		case humidity >= thresholds.HumidityLow:
			// Brief dip bridged: same event, no fragmentation.
			next.State = detection.StateActive
			next.CooldownSince = time.Time{}
		case sample.Timestamp.Sub(state.CooldownSince) >= delay:
			result.Finalized = finalize(next.Open, sample.Timestamp)
			next = detection.DetectorState{
				State:  detection.StateIdle,
				Recent: next.Recent,
			}
		}
	}

	next.LastSampleAt = sample.Timestamp
	result.State = next
	return result
}

// risingFast reports whether humidity climbed faster than the
// configured rate across the retained window. Guards against slow
// seasonal drift being misread as an event.
func (d *Detector) risingFast(recent []detection.HumidityPoint) bool {
	if d.riseRatePerMinute <= 0 || len(recent) < d.riseRateSamples {
		return false
	}
	oldest := recent[0]
	newest := recent[len(recent)-1]
	minutes := newest.At.Sub(oldest.At).Minutes()
	if minutes <= 0 {
		return false
	}
	return (newest.Value-oldest.Value)/minutes >= d.riseRatePerMinute
}

func appendRecent(recent []detection.HumidityPoint, point detection.HumidityPoint, keep int) []detection.HumidityPoint {
	recent = append(recent, point)
	if len(recent) > keep {
		recent = recent[len(recent)-keep:]
	}
	return recent
}

// accrueRuntime adds measured dehumidifier on-time for the elapsed
// interval. Runtime stays nil when telemetry never reported.
func accrueRuntime(open *detection.OpenEvent, sample sampling.Sample, lastSampleAt time.Time) {
	if sample.DehumidifierOn == nil || lastSampleAt.IsZero() {
		return
	}
	if !*sample.DehumidifierOn {
		open.AccrueRuntime(0)
		return
	}
	open.AccrueRuntime(sample.Timestamp.Sub(lastSampleAt).Minutes())
}

func finalize(open *detection.OpenEvent, endTime time.Time) *detection.Event {
	if !endTime.After(open.StartTime) {
		endTime = open.StartTime.Add(time.Second)
	}
	return &detection.Event{
		ID:                         uuid.NewString(),
		StartTime:                  open.StartTime,
		EndTime:                    endTime,
		PeakHumidity:               open.PeakHumidity,
		AvgHumidity:                open.AvgHumidity(),
		DurationMinutes:            endTime.Sub(open.StartTime).Minutes(),
		DehumidifierRuntimeMinutes: open.Runtime(),
	}
}
