package transport

import (
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// Stats keeps a lightweight rolling view of transport health: a moving
// average of attempt latency and cumulative attempt/retry counts. It backs
// the periodic throughput log line and is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	latency  *movingaverage.MovingAverage
	attempts int64
	failures int64
	retries  int64
}

// statsWindow is the number of attempts the latency average looks back on.
const statsWindow = 32

// NewStats creates an empty stats monitor.
func NewStats() *Stats {
	return &Stats{
		latency: movingaverage.New(statsWindow),
	}
}

// ObserveAttempt records one HTTP attempt and whether a response arrived.
func (s *Stats) ObserveAttempt(d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency.Add(d.Seconds())
	s.attempts++
	if !ok {
		s.failures++
	}
}

// RecordRetry records one retry decision.
func (s *Stats) RecordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

// Snapshot returns the current counters and the rolling latency average.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Attempts:   s.attempts,
		Failures:   s.failures,
		Retries:    s.retries,
		AvgLatency: time.Duration(s.latency.Avg() * float64(time.Second)),
	}
}

// StatsSnapshot is a point-in-time copy of transport statistics.
type StatsSnapshot struct {
	// Attempts is the total number of HTTP attempts issued.
	Attempts int64

	// Failures is the number of attempts that produced no response.
	Failures int64

	// Retries is the number of retry decisions taken.
	Retries int64

	// AvgLatency is the rolling average attempt latency.
	AvgLatency time.Duration
}
