package application

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	detectionapp "homeclimate/internal/detection/application"
	"homeclimate/internal/detection/application/events"
	detection "homeclimate/internal/detection/domain"
	"homeclimate/internal/eventing"
	learning "homeclimate/internal/learning/domain"
	"homeclimate/internal/observability/metrics"
	sampling "homeclimate/internal/sampling/domain"
)

const (
	// minEvents gates learning on sparse history.
	minEvents = 3
	// fullConfidenceSamples is the count at which the sample factor
	// saturates.
	fullConfidenceSamples = 10

	highSafetyMargin = 1.0
	lowBaselineSlack = 3.0
	minHumidityHigh  = 50.0
	maxHumidityHigh  = 85.0
	minDelayMinutes  = 5.0
	maxDelayMinutes  = 30.0
)

// BaselineReader provides ambient humidity readings outside events.
type BaselineReader interface {
	BaselineHumidity(ctx context.Context, since time.Time, exclude []sampling.TimeSpan) ([]float64, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Learner derives confidence-gated threshold recommendations from the
// event history. A run either commits the full parameter set or
// nothing; concurrent runs are refused with ErrBusy.
type Learner struct {
	events     detection.EventRepository
	baseline   BaselineReader
	params     learning.ParameterRepository
	thresholds *detectionapp.ThresholdStore
	bus        eventing.EventBus
	clock      Clock

	mu sync.Mutex
}

// LearnerOption customizes the learner.
type LearnerOption func(*Learner)

// WithClock assigns a clock.
func WithClock(clock Clock) LearnerOption {
	return func(l *Learner) {
		l.clock = clock
	}
}

// WithBus publishes ThresholdsUpdated on successful commits.
func WithBus(bus eventing.EventBus) LearnerOption {
	return func(l *Learner) {
		l.bus = bus
	}
}

// NewLearner constructs a Learner.
func NewLearner(events detection.EventRepository, baseline BaselineReader, params learning.ParameterRepository, thresholds *detectionapp.ThresholdStore, opts ...LearnerOption) (*Learner, error) {
	if events == nil {
		return nil, errors.New("learner: nil event repo")
	}
	if params == nil {
		return nil, errors.New("learner: nil parameter repo")
	}
	if thresholds == nil {
		return nil, errors.New("learner: nil threshold store")
	}
	learner := &Learner{
		events:     events,
		baseline:   baseline,
		params:     params,
		thresholds: thresholds,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(learner)
	}
	return learner, nil
}

// OptimizeResult reports a learner run. Insufficient data and
// insufficient confidence are normal terminal states, not errors.
type OptimizeResult struct {
	Success     bool                    `json:"success"`
	Reason      string                  `json:"reason,omitempty"`
	Confidence  float64                 `json:"confidence"`
	SamplesUsed int                     `json:"samples_used"`
	OldValues   *detection.ThresholdSet `json:"old_values,omitempty"`
	NewValues   *detection.ThresholdSet `json:"new_values,omitempty"`
}

// Optimize runs one learning cycle over the lookback window.
func (l *Learner) Optimize(ctx context.Context, daysBack int, minConfidence float64) (OptimizeResult, error) {
	if l == nil {
		return OptimizeResult{}, errors.New("learner: nil")
	}
	if !l.mu.TryLock() {
		return OptimizeResult{}, learning.ErrBusy
	}
	defer l.mu.Unlock()

	started := l.clock.Now()
	result, err := l.optimize(ctx, daysBack, minConfidence)
	outcome := metrics.ResultError
	if err == nil {
		outcome = metrics.ResultSuccess
	}
	metrics.ObserveLearnerRun(outcome, l.clock.Now().Sub(started))
	return result, err
}

func (l *Learner) optimize(ctx context.Context, daysBack int, minConfidence float64) (OptimizeResult, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	if minConfidence <= 0 {
		minConfidence = 0.7
	}

	now := l.clock.Now().UTC()
	since := now.AddDate(0, 0, -daysBack)
	history, err := l.events.ListSince(ctx, since, 0)
	if err != nil {
		return OptimizeResult{}, err
	}
	if len(history) < minEvents {
		return OptimizeResult{Success: false, Reason: "insufficient data", SamplesUsed: len(history)}, nil
	}

	peaks := make([]float64, 0, len(history))
	durations := make([]float64, 0, len(history))
	spans := make([]sampling.TimeSpan, 0, len(history))
	for _, event := range history {
		peaks = append(peaks, event.PeakHumidity)
		durations = append(durations, event.DurationMinutes)
		spans = append(spans, sampling.TimeSpan{Start: event.StartTime, End: event.EndTime})
	}

	candidate := detection.ThresholdSet{
		HumidityHigh: clampFloat(percentile(peaks, 0.75)-highSafetyMargin, minHumidityHigh, maxHumidityHigh),
		DelayMinutes: clampFloat(median(durations)/4, minDelayMinutes, maxDelayMinutes),
	}
	candidate.HumidityLow = l.recommendLow(ctx, since, spans, candidate.HumidityHigh)

	// low < high by construction; if a candidate still violates it,
	// keep the previous values.
	if err := candidate.Validate(); err != nil {
		return OptimizeResult{Success: false, Reason: "degenerate candidate, keeping previous values", SamplesUsed: len(peaks)}, nil
	}

	confidence := confidenceScore(len(peaks), stddev(peaks))
	if confidence < minConfidence {
		return OptimizeResult{
			Success:     false,
			Reason:      "insufficient confidence",
			Confidence:  confidence,
			SamplesUsed: len(peaks),
		}, nil
	}

	old := l.thresholds.Load()
	params := []learning.LearnedParameter{
		{Name: learning.ParamHumidityHigh, Value: candidate.HumidityHigh, Confidence: confidence, SamplesUsed: len(peaks), ComputedAt: now, IsLearned: true},
		{Name: learning.ParamHumidityLow, Value: candidate.HumidityLow, Confidence: confidence, SamplesUsed: len(peaks), ComputedAt: now, IsLearned: true},
		{Name: learning.ParamDelayMinutes, Value: candidate.DelayMinutes, Confidence: confidence, SamplesUsed: len(peaks), ComputedAt: now, IsLearned: true},
	}
	if err := l.params.ReplaceAll(ctx, params); err != nil {
		return OptimizeResult{}, err
	}
	if err := l.thresholds.Swap(candidate); err != nil {
		return OptimizeResult{}, err
	}
	applied := l.thresholds.Load()

	if l.bus != nil {
		_ = l.bus.Publish(ctx, events.ThresholdsUpdated{
			HumidityHigh: applied.HumidityHigh,
			HumidityLow:  applied.HumidityLow,
			DelayMinutes: applied.DelayMinutes,
			OccurredAt:   now,
		})
	}

	return OptimizeResult{
		Success:     true,
		Confidence:  confidence,
		SamplesUsed: len(peaks),
		OldValues:   &old,
		NewValues:   &applied,
	}, nil
}

// Restore re-applies persisted learned parameters, used at startup so
// a restart does not silently revert to manual config values. The swap
// happens only when all three parameters are present and learned;
// anything less keeps the manual values.
func (l *Learner) Restore(ctx context.Context) error {
	if l == nil {
		return errors.New("learner: nil")
	}
	params, err := l.params.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]learning.LearnedParameter, len(params))
	for _, param := range params {
		if param.IsLearned {
			byName[param.Name] = param
		}
	}
	high, okHigh := byName[learning.ParamHumidityHigh]
	low, okLow := byName[learning.ParamHumidityLow]
	delay, okDelay := byName[learning.ParamDelayMinutes]
	if !okHigh || !okLow || !okDelay {
		return nil
	}
	return l.thresholds.Swap(detection.ThresholdSet{
		HumidityHigh: high.Value,
		HumidityLow:  low.Value,
		DelayMinutes: delay.Value,
	})
}

// ResetResult reports a reset call.
type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Reset reverts every parameter to the manual config values.
func (l *Learner) Reset(ctx context.Context) (ResetResult, error) {
	if l == nil {
		return ResetResult{}, errors.New("learner: nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.params.MarkUnlearned(ctx); err != nil {
		return ResetResult{}, err
	}
	l.thresholds.Reset()
	return ResetResult{
		Success: true,
		Message: "learned parameters cleared, manual thresholds restored",
	}, nil
}

// recommendLow places the low threshold just above the ambient
// baseline observed outside events. Without baseline samples it falls
// back to a fixed offset below the high threshold.
func (l *Learner) recommendLow(ctx context.Context, since time.Time, spans []sampling.TimeSpan, high float64) float64 {
	if l.baseline != nil {
		values, err := l.baseline.BaselineHumidity(ctx, since, spans)
		if err == nil && len(values) > 0 {
			low := median(values) + lowBaselineSlack
			if low < high-1 {
				return low
			}
		}
	}
	return high - 10
}

// confidenceScore grows with sample count and shrinks with spread,
// clamped to [0,1].
func confidenceScore(samples int, spread float64) float64 {
	sampleFactor := math.Min(1, float64(samples)/fullConfidenceSamples)
	tightness := 1 / (1 + spread/10)
	return clampFloat(sampleFactor*tightness, 0, 1)
}

func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func median(values []float64) float64 {
	return percentile(values, 0.5)
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
