package application

import (
	"sync/atomic"

	detection "homeclimate/internal/detection/domain"
)

// ThresholdStore holds the effective ThresholdSet. Swaps are atomic,
// so the control loop observes either the pre- or post-commit set of
// a learner run, never a partial mix.
type ThresholdStore struct {
	manual  detection.ThresholdSet
	current atomic.Value
}

// NewThresholdStore constructs a store seeded with the manual config
// values.
func NewThresholdStore(manual detection.ThresholdSet) (*ThresholdStore, error) {
	manual.Learned = false
	if err := manual.Validate(); err != nil {
		return nil, err
	}
	store := &ThresholdStore{manual: manual}
	store.current.Store(manual)
	return store, nil
}

// Load returns the effective thresholds.
func (s *ThresholdStore) Load() detection.ThresholdSet {
	return s.current.Load().(detection.ThresholdSet)
}

// Swap installs a learned ThresholdSet. The low/high invariant is
// re-checked here so an invalid set can never become effective.
func (s *ThresholdStore) Swap(learned detection.ThresholdSet) error {
	learned.Learned = true
	if err := learned.Validate(); err != nil {
		return err
	}
	s.current.Store(learned)
	return nil
}

// Reset reverts to the manual config values. Always explicit, never
// silent.
func (s *ThresholdStore) Reset() detection.ThresholdSet {
	s.current.Store(s.manual)
	return s.manual
}

// Manual returns the configured fallback values.
func (s *ThresholdStore) Manual() detection.ThresholdSet {
	return s.manual
}
