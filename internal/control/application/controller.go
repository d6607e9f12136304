package application

import (
	"context"
	"errors"
	"time"

	"homeclimate/internal/config"
	detection "homeclimate/internal/detection/domain"
	"homeclimate/internal/devices"
	"homeclimate/internal/observability/metrics"
)

const (
	ActionTurnOn  = "turn_on"
	ActionTurnOff = "turn_off"
	ActionNone    = "none"
	ActionSetTemp = "set_target_temperature"
)

// ActuatorState tracks the last known actuator positions, owned by
// the control loop alongside the detector state.
type ActuatorState struct {
	DehumidifierOn bool
	HeatingBoosted bool
}

// Action is one planned actuator step with its reason.
type Action struct {
	Device            string   `json:"device"`
	Action            string   `json:"action"`
	Reason            string   `json:"reason"`
	TargetTemperature *float64 `json:"target_temperature,omitempty"`
}

// Plan is the full actuation decision for one tick.
type Plan struct {
	Dehumidifier Action  `json:"dehumidifier"`
	Heater       *Action `json:"heater,omitempty"`
}

// ActionResult reports one executed (or skipped) device call. Command
// failures are results, never panics; the next tick retries naturally.
type ActionResult struct {
	Device  string `json:"device"`
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// Controller maps detector state and effective thresholds to actuator
// intents. Decide is pure; Apply performs the device calls.
type Controller struct {
	client       devices.Client
	dehumidifier string
	heater       string
	boost        config.HeatingBoost
	timeout      time.Duration
}

// NewController constructs a Controller.
func NewController(client devices.Client, deviceIDs config.Devices, boost config.HeatingBoost, timeout time.Duration) (*Controller, error) {
	if client == nil {
		return nil, errors.New("controller: nil device client")
	}
	if deviceIDs.Dehumidifier == "" {
		return nil, errors.New("controller: dehumidifier device required")
	}
	if boost.Enabled && deviceIDs.Heater == "" {
		return nil, errors.New("controller: heater device required for boost")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Controller{
		client:       client,
		dehumidifier: deviceIDs.Dehumidifier,
		heater:       deviceIDs.Heater,
		boost:        boost,
		timeout:      timeout,
	}, nil
}

// Decide returns the plan for the current detector state. ON while
// active, OFF only once idle again; cooldown never toggles, which is
// what prevents short-cycling.
func (c *Controller) Decide(state detection.State, thresholds detection.ThresholdSet, actuator ActuatorState) Plan {
	plan := Plan{
		Dehumidifier: Action{Device: c.dehumidifier, Action: ActionNone, Reason: "state unchanged"},
	}

	switch state {
	case detection.StateActive:
		if actuator.DehumidifierOn {
			plan.Dehumidifier.Reason = "already running"
		} else {
			plan.Dehumidifier.Action = ActionTurnOn
			plan.Dehumidifier.Reason = "usage event active"
		}
	case detection.StateCooldown:
		plan.Dehumidifier.Reason = "cooldown, holding state to avoid short-cycling"
	case detection.StateIdle:
		if actuator.DehumidifierOn {
			plan.Dehumidifier.Action = ActionTurnOff
			plan.Dehumidifier.Reason = "event ended"
		} else {
			plan.Dehumidifier.Reason = "idle"
		}
	}

	if !c.boost.Enabled || c.heater == "" {
		return plan
	}

	heater := Action{Device: c.heater, Action: ActionNone, Reason: "state unchanged"}
	switch state {
	case detection.StateActive:
		if !actuator.HeatingBoosted {
			target := c.boost.BaselineTarget + c.boost.DeltaCelsius
			heater = Action{
				Device:            c.heater,
				Action:            ActionSetTemp,
				Reason:            "boost during usage event",
				TargetTemperature: &target,
			}
		} else {
			heater.Reason = "boost already applied"
		}
	case detection.StateIdle:
		if actuator.HeatingBoosted {
			target := c.boost.BaselineTarget
			heater = Action{
				Device:            c.heater,
				Action:            ActionSetTemp,
				Reason:            "revert to baseline target",
				TargetTemperature: &target,
			}
		} else {
			heater.Reason = "baseline target active"
		}
	case detection.StateCooldown:
		heater.Reason = "cooldown, holding boost"
	}
	plan.Heater = &heater
	return plan
}

// Apply executes the plan. No-op actions issue no device calls, so
// repeating a command while already in the desired state has no
// observable side effect.
func (c *Controller) Apply(ctx context.Context, plan Plan, actuator ActuatorState) (ActuatorState, []ActionResult) {
	var results []ActionResult

	if plan.Dehumidifier.Action != ActionNone {
		result := c.execute(ctx, plan.Dehumidifier.Device, plan.Dehumidifier.Action, nil)
		results = append(results, result)
		if result.Applied {
			actuator.DehumidifierOn = plan.Dehumidifier.Action == ActionTurnOn
		}
	}

	if plan.Heater != nil && plan.Heater.Action != ActionNone {
		params := map[string]any{}
		if plan.Heater.TargetTemperature != nil {
			params["temperature"] = *plan.Heater.TargetTemperature
		}
		result := c.execute(ctx, plan.Heater.Device, plan.Heater.Action, params)
		results = append(results, result)
		if result.Applied && plan.Heater.TargetTemperature != nil {
			actuator.HeatingBoosted = *plan.Heater.TargetTemperature > c.boost.BaselineTarget
		}
	}

	return actuator, results
}

func (c *Controller) execute(ctx context.Context, deviceID, action string, params map[string]any) ActionResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := ActionResult{Device: deviceID, Action: action}
	if err := c.client.Command(ctx, deviceID, action, params); err != nil {
		result.Error = err.Error()
		metrics.IncCommandResult(metrics.CommandResultFailed)
		return result
	}
	result.Applied = true
	metrics.IncCommandResult(metrics.CommandResultApplied)
	return result
}
