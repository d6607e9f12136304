package devices

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a configured device has no current
// reading. Callers degrade gracefully and never fabricate a value.
var ErrUnavailable = errors.New("devices: unavailable")

// Reading is a normalized sensor reading. Exactly one of Value or
// State is set depending on the device capability.
type Reading struct {
	Value     *float64
	State     *bool
	Available bool
}

// Client is the capability-based platform abstraction. Platform
// variants (Home Assistant, Homey) normalize to this shape; nothing
// above this interface branches on platform type.
type Client interface {
	// ReadSensor returns the current reading for a device, or
	// ErrUnavailable when the platform has no value for it.
	ReadSensor(ctx context.Context, deviceID string) (Reading, error)
	// Command executes an actuator action with optional parameters.
	Command(ctx context.Context, deviceID, action string, params map[string]any) error
}

// Float returns a Reading carrying a numeric value.
func Float(v float64) Reading {
	return Reading{Value: &v, Available: true}
}

// Bool returns a Reading carrying an on/off state.
func Bool(v bool) Reading {
	return Reading{State: &v, Available: true}
}
