package pipeline

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at time.Time
	ms int64
}

// StatsSnapshot aggregates one phase's recent durations.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LatencyStats keeps per-phase durations within a rolling window.
type LatencyStats struct {
	mu     sync.Mutex
	phases map[string][]sample
	maxAge time.Duration
	now    func() time.Time
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		phases: make(map[string][]sample),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Record adds one duration for phase. Negative durations count as zero.
func (s *LatencyStats) Record(phase string, d time.Duration) {
	ms := max(d.Milliseconds(), 0)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[phase] = append(s.prune(s.phases[phase], now), sample{at: now, ms: ms})
}

// Snapshot returns the aggregate for every phase with recent samples.
func (s *LatencyStats) Snapshot() map[string]StatsSnapshot {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]StatsSnapshot, len(s.phases))
	for phase, samples := range s.phases {
		samples = s.prune(samples, now)
		s.phases[phase] = samples
		if len(samples) == 0 {
			delete(s.phases, phase)
			continue
		}
		out[phase] = summarize(samples)
	}
	return out
}

func (s *LatencyStats) prune(samples []sample, now time.Time) []sample {
	cutoff := now.Add(-s.maxAge)
	return slices.DeleteFunc(samples, func(sm sample) bool { return sm.at.Before(cutoff) })
}

func summarize(samples []sample) StatsSnapshot {
	values := make([]int64, len(samples))
	var sum int64
	for i, sm := range samples {
		values[i] = sm.ms
		sum += sm.ms
	}
	slices.Sort(values)
	return StatsSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(index-float64(lower))
}
