package application

import (
	"context"
	"errors"
	"log"
	"time"

	learning "homeclimate/internal/learning/domain"
)

// Scheduler triggers the daily learning cycle. It owns the timer; the
// learner itself exposes plain methods over "events so far".
type Scheduler struct {
	learner       *Learner
	dailyAt       string
	daysBack      int
	minConfidence float64
	logger        *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(learner *Learner, dailyAt string, daysBack int, minConfidence float64, logger *log.Logger) *Scheduler {
	return &Scheduler{
		learner:       learner,
		dailyAt:       dailyAt,
		daysBack:      daysBack,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.learner == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.learner.Optimize(ctx, s.daysBack, s.minConfidence)
	if err != nil {
		if errors.Is(err, learning.ErrBusy) {
			return
		}
		if s.logger != nil {
			s.logger.Printf("learning schedule error: %v", err)
		}
		return
	}
	if s.logger != nil {
		if result.Success {
			s.logger.Printf("learning cycle applied: confidence=%.2f samples=%d", result.Confidence, result.SamplesUsed)
		} else {
			s.logger.Printf("learning cycle skipped: reason=%s samples=%d", result.Reason, result.SamplesUsed)
		}
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
