package finance

import (
	"fmt"
	"time"
)

// =============================================================================
// TIMESTAMP - Nanoseconds since the Unix epoch
// =============================================================================

// Timestamp is a point in time with nanosecond resolution.
// The zero value is the Unix epoch.
type Timestamp uint64

// TimestampFromNanos builds a Timestamp from raw nanoseconds.
func TimestampFromNanos(nanos uint64) Timestamp { return Timestamp(nanos) }

// FromTime converts a wall-clock time. Times before the epoch are rejected.
func FromTime(t time.Time) Timestamp {
	n := t.UnixNano()
	if n < 0 {
		arithmeticPanic("time before epoch", uint64(-n))
	}
	return Timestamp(n)
}

func (t Timestamp) Nanos() uint64   { return uint64(t) }
func (t Timestamp) Time() time.Time { return time.Unix(0, int64(t)).UTC() }
func (t Timestamp) String() string  { return t.Time().Format(time.RFC3339Nano) }

// Add moves the timestamp forward.
func (t Timestamp) Add(d Duration) Timestamp {
	return Timestamp(checkedAdd("timestamp add", uint64(t), uint64(d)))
}

// Sub moves the timestamp backward. Panics before the epoch.
func (t Timestamp) Sub(d Duration) Timestamp {
	return Timestamp(checkedSub("timestamp sub", uint64(t), uint64(d)))
}

// Clamp returns t bounded to [lo, hi].
func (t Timestamp) Clamp(lo, hi Timestamp) Timestamp {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

func MinTimestamp(a, b Timestamp) Timestamp {
	if a < b {
		return a
	}
	return b
}

func MaxTimestamp(a, b Timestamp) Timestamp {
	if a > b {
		return a
	}
	return b
}

// =============================================================================
// DURATION - Non-negative span of time
// =============================================================================

// Duration is a non-negative span in nanoseconds.
type Duration uint64

const (
	Nanosecond Duration = 1
	Second              = 1_000_000_000 * Nanosecond
	Minute              = 60 * Second
	Hour                = 60 * Minute
	Day                 = 24 * Hour
	Year                = 365 * Day
)

func DurationFromNanos(n uint64) Duration { return Duration(n) }
func FromDays(days uint64) Duration        { return Duration(checkedMul("days", days, uint64(Day))) }
func FromSecs(secs uint64) Duration        { return Duration(checkedMul("secs", secs, uint64(Second))) }

// FromStd converts a standard library duration. Negative spans are rejected.
func FromStd(d time.Duration) Duration {
	if d < 0 {
		arithmeticPanic("negative duration", uint64(-d))
	}
	return Duration(d)
}

// Between returns b - a. Requires a <= b.
func Between(a, b Timestamp) Duration {
	return Duration(checkedSub("duration between", uint64(b), uint64(a)))
}

func (d Duration) Nanos() uint64      { return uint64(d) }
func (d Duration) Std() time.Duration { return time.Duration(d) }
func (d Duration) IsZero() bool       { return d == 0 }

func (d Duration) String() string {
	if d%Day == 0 && d != 0 {
		return fmt.Sprintf("%dd", uint64(d/Day))
	}
	return time.Duration(d).String()
}

func (d Duration) Add(o Duration) Duration {
	return Duration(checkedAdd("duration add", uint64(d), uint64(o)))
}

func (d Duration) Sub(o Duration) Duration {
	return Duration(checkedSub("duration sub", uint64(d), uint64(o)))
}

// SlicePerRatio returns d * parts / total, rounded down.
// Used to find the fraction of a period a partial payment covers.
func (d Duration) SlicePerRatio(parts, total uint64) Duration {
	return Duration(mulDiv(uint64(d), parts, total))
}

// AnnualizedSliceOf returns the share of a yearly amount that accrues over d.
func (d Duration) AnnualizedSliceOf(yearly uint64) uint64 {
	return mulDiv(yearly, uint64(d), uint64(Year))
}

func MinDuration(a, b Duration) Duration {
	if a < b {
		return a
	}
	return b
}

func MaxDuration(a, b Duration) Duration {
	if a > b {
		return a
	}
	return b
}

func checkedMul(op string, a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	p := a * b
	if p/b != a {
		arithmeticPanic(op, a, b)
	}
	return p
}
