package detection

import (
	"errors"
	"time"
)

// State is the detector phase.
type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateCooldown State = "cooldown"
)

// ThresholdSet holds the effective control parameters. Exactly one
// effective value per field at any time, sourced from manual config or
// the latest accepted learned parameters.
type ThresholdSet struct {
	HumidityHigh float64
	HumidityLow  float64
	DelayMinutes float64
	Learned      bool
}

// Validate checks the low/high ordering invariant.
func (t ThresholdSet) Validate() error {
	if t.HumidityLow >= t.HumidityHigh {
		return errors.New("thresholds: humidity_low must be below humidity_high")
	}
	if t.DelayMinutes <= 0 {
		return errors.New("thresholds: delay_minutes must be positive")
	}
	return nil
}

// HumidityPoint is one retained humidity reading for rise-rate checks.
type HumidityPoint struct {
	At    time.Time
	Value float64
}

// OpenEvent is the accumulator for the event currently being tracked.
type OpenEvent struct {
	StartTime      time.Time
	PeakHumidity   float64
	humiditySum    float64
	humidityCount  int
	runtimeMinutes float64
	runtimeSeen    bool
}

// NewOpenEvent opens an event at the triggering sample.
func NewOpenEvent(at time.Time, humidity float64) *OpenEvent {
	return &OpenEvent{
		StartTime:     at,
		PeakHumidity:  humidity,
		humiditySum:   humidity,
		humidityCount: 1,
	}
}

// Observe folds one humidity reading into peak and running average.
func (o *OpenEvent) Observe(humidity float64) {
	if humidity > o.PeakHumidity {
		o.PeakHumidity = humidity
	}
	o.humiditySum += humidity
	o.humidityCount++
}

// AccrueRuntime adds actuator on-time measured from telemetry. Zero
// still counts as an observation, so an actuator that stayed off
// yields runtime 0 rather than nil.
func (o *OpenEvent) AccrueRuntime(minutes float64) {
	if minutes < 0 {
		return
	}
	o.runtimeMinutes += minutes
	o.runtimeSeen = true
}

// AvgHumidity returns the running average so far.
func (o *OpenEvent) AvgHumidity() float64 {
	if o.humidityCount == 0 {
		return 0
	}
	return o.humiditySum / float64(o.humidityCount)
}

// Runtime returns accrued dehumidifier runtime, or nil when actuator
// telemetry was never available. Runtime is measured, not inferred.
func (o *OpenEvent) Runtime() *float64 {
	if !o.runtimeSeen {
		return nil
	}
	minutes := o.runtimeMinutes
	return &minutes
}

// DetectorState is the single-owner value threaded through each tick.
// Holding at most one OpenEvent makes the "one open event" invariant a
// structural property instead of a convention.
type DetectorState struct {
	State         State
	Open          *OpenEvent
	CooldownSince time.Time
	LastSampleAt  time.Time
	Recent        []HumidityPoint
}

// NewDetectorState returns the initial idle state.
func NewDetectorState() DetectorState {
	return DetectorState{State: StateIdle}
}
