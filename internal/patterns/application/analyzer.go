package application

import (
	"fmt"
	"sort"
	"time"

	detection "homeclimate/internal/detection/domain"
)

const (
	// minEvents below which no histogram or prediction is computed.
	minEvents = 3
	// peakHourShare marks hours holding at least this share of events
	// as peak hours.
	peakHourShare = 0.15
	// defaultHorizon bounds how far ahead a prediction may reach.
	defaultHorizon = 24 * time.Hour
)

// HourBucket is one hour-of-day histogram bucket.
type HourBucket struct {
	Hour       int     `json:"hour"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DayBucket is one weekday histogram bucket. Zero-count days are
// reported explicitly so callers can show "never on Sunday".
type DayBucket struct {
	Weekday    string  `json:"weekday"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Prediction is the single best next-occurrence forecast.
type Prediction struct {
	Time        time.Time `json:"time"`
	Probability float64   `json:"probability"`
	HoursUntil  float64   `json:"hours_until"`
}

// Summary is the derived pattern view over the event window. Not
// persisted; recomputed on demand.
type Summary struct {
	SufficientData bool         `json:"sufficient_data"`
	Message        string       `json:"message,omitempty"`
	EventsCount    int          `json:"events_count"`
	Hourly         []HourBucket `json:"hourly,omitempty"`
	Weekday        []DayBucket  `json:"weekday,omitempty"`
	PeakHours      []int        `json:"peak_hours,omitempty"`
	Prediction     *Prediction  `json:"prediction,omitempty"`
}

// Stats summarizes the raw event window behind the histograms.
type Stats struct {
	EventCount         int     `json:"event_count"`
	ManualCount        int     `json:"manual_count"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
	AvgPeakHumidity    float64 `json:"avg_peak_humidity"`
	MaxPeakHumidity    float64 `json:"max_peak_humidity"`
}

// ComputeStats aggregates per-window event statistics.
func ComputeStats(events []detection.Event) Stats {
	stats := Stats{EventCount: len(events)}
	if len(events) == 0 {
		return stats
	}
	var durationSum, peakSum float64
	for _, event := range events {
		durationSum += event.DurationMinutes
		peakSum += event.PeakHumidity
		if event.PeakHumidity > stats.MaxPeakHumidity {
			stats.MaxPeakHumidity = event.PeakHumidity
		}
		if event.Manual {
			stats.ManualCount++
		}
	}
	stats.AvgDurationMinutes = durationSum / float64(len(events))
	stats.AvgPeakHumidity = peakSum / float64(len(events))
	return stats
}

// Analyzer aggregates events into usage patterns and a forecast.
type Analyzer struct {
	horizon time.Duration
}

// NewAnalyzer constructs an Analyzer with the default horizon.
func NewAnalyzer() *Analyzer {
	return &Analyzer{horizon: defaultHorizon}
}

// Analyze computes the pattern summary for the given events at now.
func (a *Analyzer) Analyze(events []detection.Event, now time.Time) Summary {
	if len(events) < minEvents {
		return Summary{
			SufficientData: false,
			EventsCount:    len(events),
			Message:        fmt.Sprintf("need %d events to analyze patterns, have %d", minEvents, len(events)),
		}
	}

	total := len(events)
	var hourCounts [24]int
	var dayCounts [7]int
	var combined [7][24]int
	for _, event := range events {
		start := event.StartTime.UTC()
		hourCounts[start.Hour()]++
		dayCounts[int(start.Weekday())]++
		combined[int(start.Weekday())][start.Hour()]++
	}

	hourly := make([]HourBucket, 24)
	for hour := 0; hour < 24; hour++ {
		hourly[hour] = HourBucket{
			Hour:       hour,
			Count:      hourCounts[hour],
			Percentage: 100 * float64(hourCounts[hour]) / float64(total),
		}
	}

	weekday := make([]DayBucket, 7)
	for day := 0; day < 7; day++ {
		weekday[day] = DayBucket{
			Weekday:    time.Weekday(day).String(),
			Count:      dayCounts[day],
			Percentage: 100 * float64(dayCounts[day]) / float64(total),
		}
	}

	var peaks []int
	for hour := 0; hour < 24; hour++ {
		if float64(hourCounts[hour])/float64(total) >= peakHourShare {
			peaks = append(peaks, hour)
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		if hourCounts[peaks[i]] != hourCounts[peaks[j]] {
			return hourCounts[peaks[i]] > hourCounts[peaks[j]]
		}
		return peaks[i] < peaks[j]
	})

	return Summary{
		SufficientData: true,
		EventsCount:    total,
		Hourly:         hourly,
		Weekday:        weekday,
		PeakHours:      peaks,
		Prediction:     a.predict(combined, total, now),
	}
}

// predict finds the combined weekday×hour bucket with the highest
// frequency strictly after now within the horizon. No historical
// occurrence ahead means no prediction, which is distinct from
// probability 0.
func (a *Analyzer) predict(combined [7][24]int, total int, now time.Time) *Prediction {
	now = now.UTC()
	horizon := a.horizon
	if horizon <= 0 {
		horizon = defaultHorizon
	}

	var best *Prediction
	bestCount := 0
	// Walk forward hour by hour starting at the next full hour.
	cursor := now.Truncate(time.Hour).Add(time.Hour)
	for !cursor.After(now.Add(horizon)) {
		count := combined[int(cursor.Weekday())][cursor.Hour()]
		if count > bestCount {
			bestCount = count
			candidate := Prediction{
				Time:        cursor,
				Probability: float64(count) / float64(total),
				HoursUntil:  cursor.Sub(now).Hours(),
			}
			best = &candidate
		}
		cursor = cursor.Add(time.Hour)
	}
	return best
}
