package application

import (
	"errors"

	detection "homeclimate/internal/detection/domain"
)

// Report is the derived energy/cost view over a rolling window. Only
// events with measured actuator runtime contribute to the runtime, kWh
// and cost figures; events closed without telemetry are counted but
// never billed.
type Report struct {
	WindowDays     int     `json:"window_days"`
	EventCount     int     `json:"event_count"`
	MeteredEvents  int     `json:"metered_events"`
	RuntimeHours   float64 `json:"runtime_hours"`
	KWh            float64 `json:"kwh"`
	CostEUR        float64 `json:"cost_eur"`
	SavingsPercent float64 `json:"savings_percent_vs_always_on"`

	// Per-event averages, only when metered_events > 0.
	AvgRuntimeMinutesPerEvent *float64 `json:"avg_runtime_minutes_per_event,omitempty"`
	AvgCostEURPerEvent        *float64 `json:"avg_cost_eur_per_event,omitempty"`
}

// Estimator converts actuator runtime and tariff into cost figures.
type Estimator struct {
	wattage float64
	tariff  float64
}

// NewEstimator constructs an Estimator.
func NewEstimator(wattage, tariffEURPerKWh float64) (*Estimator, error) {
	if wattage <= 0 {
		return nil, errors.New("energy: wattage must be positive")
	}
	if tariffEURPerKWh < 0 {
		return nil, errors.New("energy: negative tariff")
	}
	return &Estimator{wattage: wattage, tariff: tariffEURPerKWh}, nil
}

// Estimate computes the report for the given events. Events without
// runtime telemetry are excluded from the sums rather than approximated
// by their duration, so the cost figures stay measured-only. The
// function is pure: identical inputs yield identical reports.
func (e *Estimator) Estimate(events []detection.Event, windowDays int) Report {
	if windowDays <= 0 {
		windowDays = 30
	}
	report := Report{WindowDays: windowDays, EventCount: len(events)}

	var runtimeMinutes float64
	for _, event := range events {
		if event.DehumidifierRuntimeMinutes == nil {
			continue
		}
		runtimeMinutes += *event.DehumidifierRuntimeMinutes
		report.MeteredEvents++
	}

	report.RuntimeHours = runtimeMinutes / 60
	report.KWh = report.RuntimeHours * e.wattage / 1000
	report.CostEUR = report.KWh * e.tariff

	windowHours := float64(windowDays) * 24
	if windowHours > 0 {
		saved := 1 - report.RuntimeHours/windowHours
		if saved < 0 {
			saved = 0
		}
		report.SavingsPercent = saved * 100
	}

	if report.MeteredEvents > 0 {
		avgRuntime := runtimeMinutes / float64(report.MeteredEvents)
		avgCost := report.CostEUR / float64(report.MeteredEvents)
		report.AvgRuntimeMinutesPerEvent = &avgRuntime
		report.AvgCostEURPerEvent = &avgCost
	}
	return report
}
