package application

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"homeclimate/internal/config"
	controlapp "homeclimate/internal/control/application"
	detectionapp "homeclimate/internal/detection/application"
	detectionevents "homeclimate/internal/detection/application/events"
	detection "homeclimate/internal/detection/domain"
	"homeclimate/internal/devices"
	"homeclimate/internal/eventing"
	sampling "homeclimate/internal/sampling/domain"

	samplingapp "homeclimate/internal/sampling/application"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scriptedClient struct {
	mu       sync.Mutex
	humidity float64
	commands []string
}

func (c *scriptedClient) SetHumidity(value float64) {
	c.mu.Lock()
	c.humidity = value
	c.mu.Unlock()
}

func (c *scriptedClient) ReadSensor(ctx context.Context, deviceID string) (devices.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deviceID == "sensor.humidity" {
		value := c.humidity
		return devices.Reading{Value: &value, Available: true}, nil
	}
	return devices.Reading{}, devices.ErrUnavailable
}

func (c *scriptedClient) Command(ctx context.Context, deviceID, action string, params map[string]any) error {
	c.mu.Lock()
	c.commands = append(c.commands, deviceID+":"+action)
	c.mu.Unlock()
	return nil
}

func (c *scriptedClient) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type memorySampleRepo struct {
	mu      sync.Mutex
	samples []sampling.Sample
}

func (m *memorySampleRepo) Insert(ctx context.Context, sample sampling.Sample) error {
	m.mu.Lock()
	m.samples = append(m.samples, sample)
	m.mu.Unlock()
	return nil
}

func (m *memorySampleRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

type memoryEventRepo struct {
	mu     sync.Mutex
	events []detection.Event
}

func (m *memoryEventRepo) Append(ctx context.Context, event detection.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *memoryEventRepo) ListSince(ctx context.Context, since time.Time, limit int) ([]detection.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]detection.Event(nil), m.events...), nil
}

func (m *memoryEventRepo) FindOverlapping(ctx context.Context, start, end time.Time) (*detection.Event, error) {
	return nil, nil
}

func (m *memoryEventRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type engineFixture struct {
	engine *Engine
	client *scriptedClient
	clock  *fakeClock
	repo   *memoryEventRepo
	stored *memorySampleRepo
	bus    *eventing.InMemoryBus
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	cfg := config.Config{
		Devices: config.Devices{
			HumiditySensor: "sensor.humidity",
			Dehumidifier:   "switch.dehumidifier",
		},
		Thresholds:        config.Thresholds{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5},
		RiseRatePerMinute: 2,
		RiseRateSamples:   3,
		MaxSampleGap:      15 * time.Minute,
		TickInterval:      10 * time.Second,
		SampleInterval:    5 * time.Minute,
		CommandTimeout:    time.Second,
	}

	clock := &fakeClock{now: time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)}
	client := &scriptedClient{humidity: 50}

	ingestor, err := samplingapp.NewIngestor(client, cfg.Devices, samplingapp.WithClock(clock))
	if err != nil {
		t.Fatalf("ingestor: %v", err)
	}
	detector, err := detectionapp.NewDetector(cfg.RiseRatePerMinute, cfg.RiseRateSamples, cfg.MaxSampleGap)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	thresholds, err := detectionapp.NewThresholdStore(detection.ThresholdSet{
		HumidityHigh: cfg.Thresholds.HumidityHigh,
		HumidityLow:  cfg.Thresholds.HumidityLow,
		DelayMinutes: cfg.Thresholds.DelayMinutes,
	})
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	controller, err := controlapp.NewController(client, cfg.Devices, cfg.HeatingBoost, cfg.CommandTimeout)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}

	sampleRepo := &memorySampleRepo{}
	eventRepo := &memoryEventRepo{}
	bus := eventing.NewInMemoryBus()
	logger := log.New(io.Discard, "", 0)

	engine, err := NewEngine(cfg, ingestor, sampleRepo, detector, thresholds, eventRepo, controller, bus, logger, WithClock(clock))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &engineFixture{
		engine: engine,
		client: client,
		clock:  clock,
		repo:   eventRepo,
		stored: sampleRepo,
		bus:    bus,
	}
}

func TestEngine_FullEventCycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	var finalized []detectionevents.UsageEventFinalized
	f.bus.Subscribe(eventing.EventTypeOf[detectionevents.UsageEventFinalized](), func(ctx context.Context, event any) error {
		evt, ok := event.(detectionevents.UsageEventFinalized)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		finalized = append(finalized, evt)
		return nil
	})

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := f.engine.Status().State; got != string(detection.StateIdle) {
		t.Fatalf("expected idle, got %s", got)
	}
	if len(f.client.Commands()) != 0 {
		t.Fatal("idle tick must issue no command")
	}

	// Shower starts.
	f.clock.Advance(time.Minute)
	f.client.SetHumidity(80)
	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status := f.engine.Status()
	if status.State != string(detection.StateActive) {
		t.Fatalf("expected active, got %s", status.State)
	}
	if status.OpenEvent == nil {
		t.Fatal("expected open event in status")
	}
	if !status.Dehumidifier {
		t.Fatal("expected dehumidifier on")
	}
	commands := f.client.Commands()
	if len(commands) != 1 || commands[0] != "switch.dehumidifier:turn_on" {
		t.Fatalf("unexpected commands: %v", commands)
	}

	// Preview never issues device calls.
	before := len(f.client.Commands())
	plan := f.engine.Preview()
	if plan.Dehumidifier.Action != controlapp.ActionNone {
		t.Fatalf("running actuator must preview as no-op, got %s", plan.Dehumidifier.Action)
	}
	if len(f.client.Commands()) != before {
		t.Fatal("preview must be side-effect free")
	}

	// Humidity falls below low: cooldown, actuator untouched.
	f.clock.Advance(time.Minute)
	f.client.SetHumidity(55)
	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := f.engine.Status().State; got != string(detection.StateCooldown) {
		t.Fatalf("expected cooldown, got %s", got)
	}
	if len(f.client.Commands()) != 1 {
		t.Fatal("cooldown must not toggle the actuator")
	}

	// Delay elapses: event finalizes, dehumidifier turns off.
	f.clock.Advance(6 * time.Minute)
	f.client.SetHumidity(52)
	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status = f.engine.Status()
	if status.State != string(detection.StateIdle) {
		t.Fatalf("expected idle, got %s", status.State)
	}
	if f.repo.Count() != 1 {
		t.Fatalf("expected one persisted event, got %d", f.repo.Count())
	}
	commands = f.client.Commands()
	if len(commands) != 2 || commands[1] != "switch.dehumidifier:turn_off" {
		t.Fatalf("unexpected commands: %v", commands)
	}
	if len(finalized) != 1 {
		t.Fatalf("expected one bus event, got %d", len(finalized))
	}
	if finalized[0].Event.PeakHumidity != 80 {
		t.Fatalf("unexpected peak: %.1f", finalized[0].Event.PeakHumidity)
	}
}

func TestEngine_SamplePersistenceThrottled(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Four ticks one minute apart fit inside one sample interval.
	for i := 0; i < 4; i++ {
		if err := f.engine.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		f.clock.Advance(time.Minute)
	}
	if got := f.stored.Count(); got != 1 {
		t.Fatalf("expected one stored sample, got %d", got)
	}

	// Crossing the interval stores the next one.
	f.clock.Advance(5 * time.Minute)
	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := f.stored.Count(); got != 2 {
		t.Fatalf("expected two stored samples, got %d", got)
	}
}
