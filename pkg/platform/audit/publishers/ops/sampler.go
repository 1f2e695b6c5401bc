package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a configurable fraction of events per action. Verification
// traffic can be sampled down without touching the mutation trail.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	roll         func() float64
}

// NewSampler creates a sampler keeping defaultRate of events (0.0 to 1.0).
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
		roll:         rand.Float64, //nolint:gosec // sampling doesn't need crypto rand
	}
}

// ShouldSample returns true if the event should be kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.rateFor(action)
	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.roll() < rate
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
