package learning

import (
	"context"
	"errors"
	"time"
)

// Parameter names. One current value exists per name; a learner
// commit replaces all of them together or none.
const (
	ParamHumidityHigh = "humidity_high"
	ParamHumidityLow  = "humidity_low"
	ParamDelayMinutes = "dehumidifier_delay_minutes"
)

// ErrBusy is returned when a learner run is already in progress.
var ErrBusy = errors.New("learning: learner busy")

// LearnedParameter is one confidence-scored recommendation.
type LearnedParameter struct {
	Name        string
	Value       float64
	Confidence  float64
	SamplesUsed int
	ComputedAt  time.Time
	IsLearned   bool
}

// Validate checks parameter invariants.
func (p LearnedParameter) Validate() error {
	if p.Name == "" {
		return errors.New("learned parameter: empty name")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return errors.New("learned parameter: confidence out of [0,1]")
	}
	if p.SamplesUsed < 0 {
		return errors.New("learned parameter: negative sample count")
	}
	return nil
}

// ParameterRepository persists the current learned parameters, one
// row per name.
type ParameterRepository interface {
	// ReplaceAll atomically overwrites the full parameter set.
	ReplaceAll(ctx context.Context, params []LearnedParameter) error
	// List returns the current parameters.
	List(ctx context.Context) ([]LearnedParameter, error)
	// MarkUnlearned flips is_learned off for every parameter.
	MarkUnlearned(ctx context.Context) error
}
