package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"homeclimate/internal/config"
	detection "homeclimate/internal/detection/domain"
	"homeclimate/internal/devices"
)

type recordedCommand struct {
	DeviceID string
	Action   string
	Params   map[string]any
}

type stubClient struct {
	commands []recordedCommand
	fail     bool
}

func (s *stubClient) ReadSensor(ctx context.Context, deviceID string) (devices.Reading, error) {
	return devices.Reading{}, devices.ErrUnavailable
}

func (s *stubClient) Command(ctx context.Context, deviceID, action string, params map[string]any) error {
	if s.fail {
		return errors.New("device unreachable")
	}
	s.commands = append(s.commands, recordedCommand{DeviceID: deviceID, Action: action, Params: params})
	return nil
}

var testDeviceIDs = config.Devices{
	HumiditySensor: "sensor.humidity",
	Dehumidifier:   "switch.dehumidifier",
	Heater:         "climate.bathroom",
}

func newTestController(t *testing.T, client devices.Client, boost config.HeatingBoost) *Controller {
	t.Helper()
	controller, err := NewController(client, testDeviceIDs, boost, time.Second)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return controller
}

func TestController_TurnsOnWhenActive(t *testing.T) {
	controller := newTestController(t, &stubClient{}, config.HeatingBoost{})
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateActive, thresholds, ActuatorState{})
	if plan.Dehumidifier.Action != ActionTurnOn {
		t.Fatalf("expected turn_on, got %s", plan.Dehumidifier.Action)
	}
}

func TestController_AlreadyOnIsNoOp(t *testing.T) {
	client := &stubClient{}
	controller := newTestController(t, client, config.HeatingBoost{})
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateActive, thresholds, ActuatorState{DehumidifierOn: true})
	if plan.Dehumidifier.Action != ActionNone {
		t.Fatalf("expected no-op, got %s", plan.Dehumidifier.Action)
	}

	_, results := controller.Apply(context.Background(), plan, ActuatorState{DehumidifierOn: true})
	if len(results) != 0 || len(client.commands) != 0 {
		t.Fatal("no-op plan must issue no device call")
	}
}

func TestController_CooldownNeverToggles(t *testing.T) {
	controller := newTestController(t, &stubClient{}, config.HeatingBoost{})
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	for _, on := range []bool{true, false} {
		plan := controller.Decide(detection.StateCooldown, thresholds, ActuatorState{DehumidifierOn: on})
		if plan.Dehumidifier.Action != ActionNone {
			t.Fatalf("cooldown toggled actuator (on=%t): %s", on, plan.Dehumidifier.Action)
		}
	}
}

func TestController_TurnsOffOnlyWhenIdleAgain(t *testing.T) {
	client := &stubClient{}
	controller := newTestController(t, client, config.HeatingBoost{})
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateIdle, thresholds, ActuatorState{DehumidifierOn: true})
	if plan.Dehumidifier.Action != ActionTurnOff {
		t.Fatalf("expected turn_off, got %s", plan.Dehumidifier.Action)
	}

	actuator, results := controller.Apply(context.Background(), plan, ActuatorState{DehumidifierOn: true})
	if len(results) != 1 || !results[0].Applied {
		t.Fatalf("expected one applied result, got %+v", results)
	}
	if actuator.DehumidifierOn {
		t.Fatal("actuator state must track the applied command")
	}
}

func TestController_FailedCommandKeepsState(t *testing.T) {
	client := &stubClient{fail: true}
	controller := newTestController(t, client, config.HeatingBoost{})
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateActive, thresholds, ActuatorState{})
	actuator, results := controller.Apply(context.Background(), plan, ActuatorState{})
	if len(results) != 1 || results[0].Applied {
		t.Fatalf("expected one failed result, got %+v", results)
	}
	if results[0].Error == "" {
		t.Fatal("expected error detail on failed result")
	}
	if actuator.DehumidifierOn {
		t.Fatal("failed command must not flip actuator state")
	}
}

func TestController_HeatingBoostAppliesAndReverts(t *testing.T) {
	client := &stubClient{}
	boost := config.HeatingBoost{Enabled: true, DeltaCelsius: 2, BaselineTarget: 21}
	controller := newTestController(t, client, boost)
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateActive, thresholds, ActuatorState{})
	if plan.Heater == nil || plan.Heater.Action != ActionSetTemp {
		t.Fatalf("expected boost plan, got %+v", plan.Heater)
	}
	if *plan.Heater.TargetTemperature != 23 {
		t.Fatalf("expected target 23, got %.1f", *plan.Heater.TargetTemperature)
	}

	actuator, _ := controller.Apply(context.Background(), plan, ActuatorState{})
	if !actuator.HeatingBoosted {
		t.Fatal("expected heating boost flag")
	}

	plan = controller.Decide(detection.StateIdle, thresholds, actuator)
	if plan.Heater == nil || plan.Heater.Action != ActionSetTemp {
		t.Fatalf("expected revert plan, got %+v", plan.Heater)
	}
	if *plan.Heater.TargetTemperature != 21 {
		t.Fatalf("expected baseline 21, got %.1f", *plan.Heater.TargetTemperature)
	}

	actuator, _ = controller.Apply(context.Background(), plan, actuator)
	if actuator.HeatingBoosted {
		t.Fatal("expected boost cleared after revert")
	}
}

func TestController_CooldownHoldsBoost(t *testing.T) {
	boost := config.HeatingBoost{Enabled: true, DeltaCelsius: 2, BaselineTarget: 21}
	controller := newTestController(t, &stubClient{}, boost)
	thresholds := detection.ThresholdSet{HumidityHigh: 70, HumidityLow: 60, DelayMinutes: 5}

	plan := controller.Decide(detection.StateCooldown, thresholds, ActuatorState{DehumidifierOn: true, HeatingBoosted: true})
	if plan.Heater == nil || plan.Heater.Action != ActionNone {
		t.Fatal("cooldown must hold the boost")
	}
}
