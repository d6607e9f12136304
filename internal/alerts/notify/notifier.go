package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	alerts "homeclimate/internal/alerts/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Notifier forwards alerts at or above a minimum severity to a
// channel, with a per-title cooldown to avoid repeats.
type Notifier struct {
	channel     Channel
	minSeverity string
	cooldown    time.Duration
	clock       Clock

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Option customizes the notifier.
type Option func(*Notifier)

// WithCooldown sets the per-title repeat suppression window.
func WithCooldown(cooldown time.Duration) Option {
	return func(n *Notifier) {
		n.cooldown = cooldown
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		n.clock = clock
	}
}

// NewNotifier constructs a Notifier.
func NewNotifier(channel Channel, minSeverity string, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notify: nil channel")
	}
	notifier := &Notifier{
		channel:     channel,
		minSeverity: minSeverity,
		cooldown:    30 * time.Minute,
		clock:       systemClock{},
		lastSent:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Notify delivers one alert if it clears the severity floor and the
// cooldown. Delivery failures are swallowed; alerting must never
// stall the caller.
func (n *Notifier) Notify(ctx context.Context, alert alerts.Alert) {
	if n == nil {
		return
	}
	if severityRank(alert.Severity) < severityRank(n.minSeverity) {
		return
	}

	now := n.clock.Now()
	n.mu.Lock()
	if last, ok := n.lastSent[alert.Title]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[alert.Title] = now
	n.mu.Unlock()

	content := fmt.Sprintf("[%s] %s\n%s", alert.Severity, alert.Title, alert.Message)
	_ = n.channel.Send(ctx, content)
}

func severityRank(severity string) int {
	switch severity {
	case alerts.SeverityLow:
		return 1
	case alerts.SeverityMedium:
		return 2
	case alerts.SeverityHigh:
		return 3
	default:
		return 0
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
