package application

import (
	"strconv"
	"testing"
	"time"

	detection "homeclimate/internal/detection/domain"
)

func eventAt(i int, start time.Time) detection.Event {
	return detection.Event{
		ID:              "evt-" + strconv.Itoa(i),
		StartTime:       start,
		EndTime:         start.Add(15 * time.Minute),
		PeakHumidity:    75,
		AvgHumidity:     70,
		DurationMinutes: 15,
	}
}

func TestAnalyzer_InsufficientData(t *testing.T) {
	analyzer := NewAnalyzer()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	events := []detection.Event{
		eventAt(0, now.AddDate(0, 0, -2)),
		eventAt(1, now.AddDate(0, 0, -1)),
	}
	summary := analyzer.Analyze(events, now)
	if summary.SufficientData {
		t.Fatal("two events must not be sufficient")
	}
	if summary.Message == "" {
		t.Fatal("expected explanatory message")
	}
	if summary.Prediction != nil {
		t.Fatal("no prediction on insufficient data")
	}
	if summary.EventsCount != 2 {
		t.Fatalf("expected count 2, got %d", summary.EventsCount)
	}
}

func TestAnalyzer_MorningRoutinePattern(t *testing.T) {
	analyzer := NewAnalyzer()
	// Thursday noon.
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// Ten days of 07:xx events, ending yesterday.
	var events []detection.Event
	for i := 0; i < 10; i++ {
		day := now.AddDate(0, 0, -(i + 1))
		events = append(events, eventAt(i, time.Date(day.Year(), day.Month(), day.Day(), 7, 10, 0, 0, time.UTC)))
	}

	summary := analyzer.Analyze(events, now)
	if !summary.SufficientData {
		t.Fatalf("expected sufficient data: %s", summary.Message)
	}
	if len(summary.Hourly) != 24 {
		t.Fatalf("expected 24 hourly buckets, got %d", len(summary.Hourly))
	}
	if len(summary.Weekday) != 7 {
		t.Fatalf("expected 7 weekday buckets, got %d", len(summary.Weekday))
	}
	if summary.Hourly[7].Count != 10 {
		t.Fatalf("expected all events at hour 7, got %d", summary.Hourly[7].Count)
	}
	if len(summary.PeakHours) == 0 || summary.PeakHours[0] != 7 {
		t.Fatalf("expected hour 7 as top peak, got %v", summary.PeakHours)
	}

	prediction := summary.Prediction
	if prediction == nil {
		t.Fatal("expected a prediction")
	}
	if !prediction.Time.After(now) {
		t.Fatalf("prediction %s not in the future", prediction.Time)
	}
	if prediction.Probability <= 0 || prediction.Probability > 1 {
		t.Fatalf("probability out of range: %.2f", prediction.Probability)
	}
	if prediction.HoursUntil < 0 {
		t.Fatalf("negative hours_until: %.1f", prediction.HoursUntil)
	}
	if prediction.Time.Hour() != 7 {
		t.Fatalf("expected a 07:00 forecast, got hour %d", prediction.Time.Hour())
	}
}

func TestAnalyzer_ZeroCountWeekdaysReported(t *testing.T) {
	analyzer := NewAnalyzer()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// Mondays only.
	monday := time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC)
	var events []detection.Event
	for i := 0; i < 3; i++ {
		events = append(events, eventAt(i, monday.AddDate(0, 0, i*7)))
	}

	summary := analyzer.Analyze(events, now)
	if !summary.SufficientData {
		t.Fatalf("expected sufficient data: %s", summary.Message)
	}
	var sundays, mondays int
	for _, bucket := range summary.Weekday {
		switch bucket.Weekday {
		case "Sunday":
			sundays = bucket.Count
		case "Monday":
			mondays = bucket.Count
		}
	}
	if sundays != 0 {
		t.Fatalf("expected explicit zero-count Sunday, got %d", sundays)
	}
	if mondays != 3 {
		t.Fatalf("expected 3 Monday events, got %d", mondays)
	}
}

func TestComputeStats_AggregatesWindow(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	events := []detection.Event{
		{ID: "a", StartTime: now.AddDate(0, 0, -3), EndTime: now.AddDate(0, 0, -3).Add(10 * time.Minute), PeakHumidity: 72, AvgHumidity: 68, DurationMinutes: 10},
		{ID: "b", StartTime: now.AddDate(0, 0, -2), EndTime: now.AddDate(0, 0, -2).Add(20 * time.Minute), PeakHumidity: 80, AvgHumidity: 74, DurationMinutes: 20},
		{ID: "c", StartTime: now.AddDate(0, 0, -1), EndTime: now.AddDate(0, 0, -1).Add(30 * time.Minute), PeakHumidity: 76, AvgHumidity: 70, DurationMinutes: 30, Manual: true},
	}

	stats := ComputeStats(events)
	if stats.EventCount != 3 {
		t.Fatalf("expected 3 events, got %d", stats.EventCount)
	}
	if stats.ManualCount != 1 {
		t.Fatalf("expected 1 manual event, got %d", stats.ManualCount)
	}
	if stats.AvgDurationMinutes != 20 {
		t.Fatalf("expected avg duration 20, got %.1f", stats.AvgDurationMinutes)
	}
	if stats.AvgPeakHumidity != 76 {
		t.Fatalf("expected avg peak 76, got %.1f", stats.AvgPeakHumidity)
	}
	if stats.MaxPeakHumidity != 80 {
		t.Fatalf("expected max peak 80, got %.1f", stats.MaxPeakHumidity)
	}
}

func TestComputeStats_EmptyWindow(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.EventCount != 0 || stats.AvgDurationMinutes != 0 || stats.MaxPeakHumidity != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestAnalyzer_NoOccurrenceWithinHorizonMeansNoPrediction(t *testing.T) {
	analyzer := NewAnalyzer()
	// Tuesday; history exists only for Monday mornings, which is more
	// than 24h away.
	now := time.Date(2026, 8, 18, 8, 0, 0, 0, time.UTC)

	monday := time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC)
	var events []detection.Event
	for i := 0; i < 3; i++ {
		events = append(events, eventAt(i, monday.AddDate(0, 0, i*7)))
	}

	summary := analyzer.Analyze(events, now)
	if !summary.SufficientData {
		t.Fatalf("expected sufficient data: %s", summary.Message)
	}
	if summary.Prediction != nil {
		t.Fatalf("expected no prediction, got %+v", summary.Prediction)
	}
}
