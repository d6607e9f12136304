package events

import (
	"time"

	detection "homeclimate/internal/detection/domain"
)

// UsageEventFinalized is emitted when the detector closes an event.
type UsageEventFinalized struct {
	Event      detection.Event `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// SampleGapDetected is emitted when the humidity stream went silent
// long enough to force-finalize an open event.
type SampleGapDetected struct {
	LastGoodSample time.Time     `json:"last_good_sample"`
	Gap            time.Duration `json:"gap"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// ThresholdsUpdated is emitted when the learner swaps in a new set.
type ThresholdsUpdated struct {
	HumidityHigh float64   `json:"humidity_high"`
	HumidityLow  float64   `json:"humidity_low"`
	DelayMinutes float64   `json:"delay_minutes"`
	OccurredAt   time.Time `json:"occurred_at"`
}
