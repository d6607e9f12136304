package application

import (
	"context"
	"errors"
	"time"

	"homeclimate/internal/config"
	"homeclimate/internal/devices"
	sampling "homeclimate/internal/sampling/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Ingestor reads the configured devices and normalizes their current
// readings into one Sample per tick.
type Ingestor struct {
	client  devices.Client
	devices config.Devices
	clock   Clock
}

// IngestorOption customizes the ingestor.
type IngestorOption func(*Ingestor)

// WithClock assigns a clock.
func WithClock(clock Clock) IngestorOption {
	return func(i *Ingestor) {
		i.clock = clock
	}
}

// NewIngestor constructs an Ingestor.
func NewIngestor(client devices.Client, deviceIDs config.Devices, opts ...IngestorOption) (*Ingestor, error) {
	if client == nil {
		return nil, errors.New("ingestor: nil device client")
	}
	if deviceIDs.HumiditySensor == "" {
		return nil, errors.New("ingestor: humidity sensor required")
	}
	ingestor := &Ingestor{
		client:  client,
		devices: deviceIDs,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(ingestor)
	}
	return ingestor, nil
}

// Collect reads all configured sensors. An unavailable sensor leaves
// its field nil; only transport failures on the humidity sensor are
// returned as errors, everything else degrades.
func (i *Ingestor) Collect(ctx context.Context) (sampling.Sample, error) {
	if i == nil {
		return sampling.Sample{}, errors.New("ingestor: nil")
	}
	sample := sampling.Sample{Timestamp: i.clock.Now().UTC()}

	humidity, err := i.readFloat(ctx, i.devices.HumiditySensor)
	if err != nil && !errors.Is(err, devices.ErrUnavailable) {
		return sample, err
	}
	sample.Humidity = humidity

	sample.Temperature = i.readFloatQuiet(ctx, i.devices.TemperatureSensor)
	sample.Motion = i.readBoolQuiet(ctx, i.devices.MotionSensor)
	sample.DoorOpen = i.readBoolQuiet(ctx, i.devices.DoorSensor)
	sample.WindowOpen = i.readBoolQuiet(ctx, i.devices.WindowSensor)
	sample.DehumidifierOn = i.readBoolQuiet(ctx, i.devices.Dehumidifier)
	return sample, nil
}

// SensorState is one entry in the live snapshot.
type SensorState struct {
	Name      string   `json:"name"`
	DeviceID  string   `json:"device_id"`
	Value     *float64 `json:"value,omitempty"`
	State     *bool    `json:"state,omitempty"`
	Available bool     `json:"available"`
}

// Snapshot returns the current reading of every configured device.
func (i *Ingestor) Snapshot(ctx context.Context, cfg config.Config) []SensorState {
	if i == nil {
		return nil
	}
	var states []SensorState
	for _, entry := range cfg.SensorNames() {
		state := SensorState{Name: entry.Name, DeviceID: entry.DeviceID}
		reading, err := i.client.ReadSensor(ctx, entry.DeviceID)
		if err == nil && reading.Available {
			state.Value = reading.Value
			state.State = reading.State
			state.Available = true
		}
		states = append(states, state)
	}
	return states
}

func (i *Ingestor) readFloat(ctx context.Context, deviceID string) (*float64, error) {
	if deviceID == "" {
		return nil, devices.ErrUnavailable
	}
	reading, err := i.client.ReadSensor(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !reading.Available || reading.Value == nil {
		return nil, devices.ErrUnavailable
	}
	return reading.Value, nil
}

func (i *Ingestor) readFloatQuiet(ctx context.Context, deviceID string) *float64 {
	value, err := i.readFloat(ctx, deviceID)
	if err != nil {
		return nil
	}
	return value
}

func (i *Ingestor) readBoolQuiet(ctx context.Context, deviceID string) *bool {
	if deviceID == "" {
		return nil
	}
	reading, err := i.client.ReadSensor(ctx, deviceID)
	if err != nil || !reading.Available || reading.State == nil {
		return nil
	}
	return reading.State
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
