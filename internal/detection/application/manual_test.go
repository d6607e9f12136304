package application

import (
	"context"
	"errors"
	"testing"
	"time"

	detection "homeclimate/internal/detection/domain"
)

type stubEventRepo struct {
	events   []detection.Event
	appended int
}

func (s *stubEventRepo) Append(ctx context.Context, event detection.Event) error {
	s.events = append(s.events, event)
	s.appended++
	return nil
}

func (s *stubEventRepo) ListSince(ctx context.Context, since time.Time, limit int) ([]detection.Event, error) {
	var result []detection.Event
	for _, event := range s.events {
		if !event.StartTime.Before(since) {
			result = append(result, event)
		}
	}
	return result, nil
}

func (s *stubEventRepo) FindOverlapping(ctx context.Context, start, end time.Time) (*detection.Event, error) {
	for _, event := range s.events {
		if event.StartTime.Before(end) && event.EndTime.After(start) {
			found := event
			return &found, nil
		}
	}
	return nil, nil
}

func TestManualRecorder_RecordsValidEntry(t *testing.T) {
	repo := &stubEventRepo{}
	recorder, err := NewManualRecorder(repo)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	start := time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC)
	event, err := recorder.Record(context.Background(), ManualEntry{
		StartTime:    start,
		EndTime:      start.Add(20 * time.Minute),
		PeakHumidity: 80,
		Notes:        "guest visit",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !event.Manual {
		t.Fatal("expected manual flag")
	}
	if event.DurationMinutes != 20 {
		t.Fatalf("expected 20 minutes, got %.1f", event.DurationMinutes)
	}
	if repo.appended != 1 {
		t.Fatalf("expected one append, got %d", repo.appended)
	}
}

func TestManualRecorder_RejectsInvertedRange(t *testing.T) {
	repo := &stubEventRepo{}
	recorder, _ := NewManualRecorder(repo)

	start := time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC)
	_, err := recorder.Record(context.Background(), ManualEntry{
		StartTime:    start,
		EndTime:      start.Add(-10 * time.Minute),
		PeakHumidity: 80,
	})
	if !errors.Is(err, detection.ErrInvalidManualEvent) {
		t.Fatalf("expected ErrInvalidManualEvent, got %v", err)
	}
	if repo.appended != 0 {
		t.Fatal("rejected entry must not be persisted")
	}
}

func TestManualRecorder_RejectsExcessiveDuration(t *testing.T) {
	repo := &stubEventRepo{}
	recorder, _ := NewManualRecorder(repo)

	start := time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC)
	_, err := recorder.Record(context.Background(), ManualEntry{
		StartTime:    start,
		EndTime:      start.Add(3 * time.Hour),
		PeakHumidity: 80,
	})
	if !errors.Is(err, detection.ErrInvalidManualEvent) {
		t.Fatalf("expected ErrInvalidManualEvent, got %v", err)
	}
	if repo.appended != 0 {
		t.Fatal("rejected entry must not be persisted")
	}
}

func TestManualRecorder_RejectsOverlap(t *testing.T) {
	start := time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC)
	repo := &stubEventRepo{events: []detection.Event{{
		ID:           "existing",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		PeakHumidity: 75,
		AvgHumidity:  70,
	}}}
	recorder, _ := NewManualRecorder(repo)

	_, err := recorder.Record(context.Background(), ManualEntry{
		StartTime:    start.Add(10 * time.Minute),
		EndTime:      start.Add(40 * time.Minute),
		PeakHumidity: 80,
	})
	if !errors.Is(err, detection.ErrInvalidManualEvent) {
		t.Fatalf("expected ErrInvalidManualEvent, got %v", err)
	}
	if repo.appended != 0 {
		t.Fatal("overlapping entry must not be persisted")
	}
}

func TestManualRecorder_RejectsPeakOutOfRange(t *testing.T) {
	repo := &stubEventRepo{}
	recorder, _ := NewManualRecorder(repo)

	start := time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC)
	for _, peak := range []float64{0, -5, 120} {
		_, err := recorder.Record(context.Background(), ManualEntry{
			StartTime:    start,
			EndTime:      start.Add(10 * time.Minute),
			PeakHumidity: peak,
		})
		if !errors.Is(err, detection.ErrInvalidManualEvent) {
			t.Fatalf("peak %.0f: expected ErrInvalidManualEvent, got %v", peak, err)
		}
	}
}
