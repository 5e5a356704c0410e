package queue

import "time"

// BackoffRule maps an attempt count to the delay before the next attempt.
// NextDelay returns ok=false when the rule is exhausted and the entry must
// be abandoned. Delays are non-decreasing in the attempt count.
type BackoffRule interface {
	NextDelay(attempt int) (time.Duration, bool)
}

// FixedBackoff retries at a constant interval up to MaxAttempts.
type FixedBackoff struct {
	Interval    time.Duration
	MaxAttempts int
}

func (b FixedBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	return b.Interval, true
}

// ExponentialBackoff doubles the delay per attempt, capped at Max.
type ExponentialBackoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (b ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	delay := b.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max, true
		}
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay, true
}

// ScheduleBackoff follows a caller-supplied delay table and exhausts when
// the table runs out. The table must be non-decreasing.
type ScheduleBackoff struct {
	Delays []time.Duration
}

func (b ScheduleBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(b.Delays) {
		return 0, false
	}
	return b.Delays[attempt-1], true
}
