package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"homeclimate/internal/config"
	controlapp "homeclimate/internal/control/application"
	detectionapp "homeclimate/internal/detection/application"
	"homeclimate/internal/detection/application/events"
	detection "homeclimate/internal/detection/domain"
	"homeclimate/internal/eventing"
	"homeclimate/internal/observability/metrics"
	samplingapp "homeclimate/internal/sampling/application"
	sampling "homeclimate/internal/sampling/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Engine runs the single-threaded sense-decide-act loop. All detector
// and actuator state lives here, guarded by one mutex; Tick is the
// only writer.
type Engine struct {
	cfg        config.Config
	ingestor   *samplingapp.Ingestor
	samples    sampling.SampleRepository
	detector   *detectionapp.Detector
	thresholds *detectionapp.ThresholdStore
	events     detection.EventRepository
	controller *controlapp.Controller
	bus        eventing.EventBus
	logger     *log.Logger
	clock      Clock

	mu          sync.Mutex
	state       detection.DetectorState
	actuator    controlapp.ActuatorState
	lastSaved   time.Time
	lastSample  *sampling.Sample
	lastResults []controlapp.ActionResult
	lastTickAt  time.Time
	lastError   string
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine constructs the loop engine.
func NewEngine(
	cfg config.Config,
	ingestor *samplingapp.Ingestor,
	samples sampling.SampleRepository,
	detector *detectionapp.Detector,
	thresholds *detectionapp.ThresholdStore,
	eventRepo detection.EventRepository,
	controller *controlapp.Controller,
	bus eventing.EventBus,
	logger *log.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if ingestor == nil || samples == nil || detector == nil || thresholds == nil || eventRepo == nil || controller == nil {
		return nil, errors.New("automation: missing dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	engine := &Engine{
		cfg:        cfg,
		ingestor:   ingestor,
		samples:    samples,
		detector:   detector,
		thresholds: thresholds,
		events:     eventRepo,
		controller: controller,
		bus:        bus,
		logger:     logger,
		clock:      systemClock{},
		state:      detection.NewDetectorState(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Tick runs one sense-decide-act cycle.
func (e *Engine) Tick(ctx context.Context) error {
	start := e.clock.Now()

	sample, err := e.ingestor.Collect(ctx)
	if err != nil {
		e.mu.Lock()
		e.lastError = err.Error()
		e.lastTickAt = start
		e.mu.Unlock()
		metrics.ObserveLoopTick(metrics.ResultError, e.clock.Now().Sub(start))
		e.logger.Printf("loop: collect failed error=%v", err)
		return err
	}

	e.mu.Lock()
	thresholds := e.thresholds.Load()
	previous := e.state.State
	tick := e.detector.Process(e.state, sample, thresholds)
	e.state = tick.State

	if e.lastSaved.IsZero() || sample.Timestamp.Sub(e.lastSaved) >= e.cfg.SampleInterval {
		if err := e.samples.Insert(ctx, sample); err != nil {
			e.logger.Printf("loop: persist sample failed error=%v", err)
		} else {
			e.lastSaved = sample.Timestamp
		}
	}

	if tick.Finalized != nil {
		if err := e.events.Append(ctx, *tick.Finalized); err != nil {
			e.lastError = err.Error()
			e.logger.Printf("loop: persist event failed id=%s error=%v", tick.Finalized.ID, err)
		} else {
			metrics.IncEventFinalized("detector")
			e.logger.Printf("loop: event finalized id=%s peak=%.1f duration_min=%.1f",
				tick.Finalized.ID, tick.Finalized.PeakHumidity, tick.Finalized.DurationMinutes)
		}
	}

	plan := e.controller.Decide(e.state.State, thresholds, e.actuator)
	actuator, results := e.controller.Apply(ctx, plan, e.actuator)
	e.actuator = actuator
	e.lastResults = results
	e.lastSample = &sample
	e.lastTickAt = start
	e.lastError = ""
	current := e.state.State
	e.mu.Unlock()

	if current != previous {
		metrics.IncDetectorTransition(string(current))
		e.logger.Printf("loop: transition from=%s to=%s", previous, current)
	}
	for _, result := range results {
		if result.Error != "" {
			e.logger.Printf("loop: command failed device=%s action=%s error=%s", result.Device, result.Action, result.Error)
		}
	}

	e.publishTickEvents(ctx, tick, start)
	metrics.ObserveLoopTick(metrics.ResultSuccess, e.clock.Now().Sub(start))
	return nil
}

func (e *Engine) publishTickEvents(ctx context.Context, tick detectionapp.TickResult, at time.Time) {
	if e.bus == nil {
		return
	}
	if tick.Finalized != nil {
		event := events.UsageEventFinalized{Event: *tick.Finalized, OccurredAt: at}
		if err := e.bus.Publish(ctx, event); err != nil {
			e.logger.Printf("loop: publish finalized event failed error=%v", err)
		}
	}
	if tick.Gap != nil {
		event := events.SampleGapDetected{LastGoodSample: tick.Gap.LastGoodSample, Gap: tick.Gap.Gap, OccurredAt: at}
		if err := e.bus.Publish(ctx, event); err != nil {
			e.logger.Printf("loop: publish gap event failed error=%v", err)
		}
	}
}

// OpenEventStatus describes the in-progress event, if any.
type OpenEventStatus struct {
	StartTime    time.Time `json:"start_time"`
	PeakHumidity float64   `json:"peak_humidity"`
}

// Status is the live loop snapshot served to operators.
type Status struct {
	State        string                    `json:"state"`
	OpenEvent    *OpenEventStatus          `json:"open_event,omitempty"`
	Thresholds   detection.ThresholdSet    `json:"thresholds"`
	Dehumidifier bool                      `json:"dehumidifier_on"`
	HeatBoosted  bool                      `json:"heating_boosted"`
	LastSample   *sampling.Sample          `json:"last_sample,omitempty"`
	LastTickAt   time.Time                 `json:"last_tick_at"`
	LastError    string                    `json:"last_error,omitempty"`
	LastActions  []controlapp.ActionResult `json:"last_actions,omitempty"`
}

// Status reports current loop state without side effects.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		State:        string(e.state.State),
		Thresholds:   e.thresholds.Load(),
		Dehumidifier: e.actuator.DehumidifierOn,
		HeatBoosted:  e.actuator.HeatingBoosted,
		LastSample:   e.lastSample,
		LastTickAt:   e.lastTickAt,
		LastError:    e.lastError,
		LastActions:  e.lastResults,
	}
	if e.state.Open != nil {
		status.OpenEvent = &OpenEventStatus{
			StartTime:    e.state.Open.StartTime,
			PeakHumidity: e.state.Open.PeakHumidity,
		}
	}
	return status
}

// Preview returns the plan the controller would execute right now,
// without issuing any device command.
func (e *Engine) Preview() controlapp.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controller.Decide(e.state.State, e.thresholds.Load(), e.actuator)
}

// Snapshot reads every configured device live.
func (e *Engine) Snapshot(ctx context.Context) []samplingapp.SensorState {
	return e.ingestor.Snapshot(ctx, e.cfg)
}

// Run ticks the loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Tick(ctx)
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
