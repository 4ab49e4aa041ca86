package transport

import "sync/atomic"

// DefaultMaxFailedSplits is the default number of failed splits one batch
// tree may accumulate before all remaining fragments are force-failed.
const DefaultMaxFailedSplits = 50

// Tracker bounds how many times one original batch's descendants may
// fail-and-split before the whole batch tree is declared permanently failed.
// It is shared by every fragment produced from one original batch and must
// be safe for concurrent use: fragments may be processed by different pool
// workers simultaneously.
//
// The tracker also carries the batch tree's shared status-attempt baseline:
// server errors (5xx) increment it so that repeated server failures keep
// counting toward the retry ceiling even as the fragments shrink.
type Tracker struct {
	failedSplits    atomic.Int64
	sharedStatus    atomic.Int64
	maxFailedSplits int64
}

// NewTracker creates a tracker allowing at most maxFailedSplits failed
// splits. Values <= 0 fall back to DefaultMaxFailedSplits.
func NewTracker(maxFailedSplits int) *Tracker {
	if maxFailedSplits <= 0 {
		maxFailedSplits = DefaultMaxFailedSplits
	}
	return &Tracker{maxFailedSplits: int64(maxFailedSplits)}
}

// RecordFailedSplit counts one failed split for the batch tree.
func (t *Tracker) RecordFailedSplit() {
	t.failedSplits.Add(1)
}

// FailedSplits returns the number of failed splits recorded so far.
func (t *Tracker) FailedSplits() int {
	return int(t.failedSplits.Load())
}

// LimitReached reports whether the batch tree has exhausted its split
// budget. Once true, no further splitting is attempted.
func (t *Tracker) LimitReached() bool {
	return t.failedSplits.Load() >= t.maxFailedSplits
}

// RecordStatusAttempt adds one attempt to the shared status-attempt
// baseline for the batch tree.
func (t *Tracker) RecordStatusAttempt() {
	t.sharedStatus.Add(1)
}

// SharedStatusAttempts returns the batch tree's shared status-attempt
// baseline.
func (t *Tracker) SharedStatusAttempts() int {
	return int(t.sharedStatus.Load())
}
