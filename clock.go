package gstkit

import "time"

// ClockTime is a timestamp or duration in nanoseconds, as the engine
// reports it. The zero value is a valid time; ClockTimeNone marks an
// unset value.
type ClockTime uint64

// ClockTimeNone is the engine's sentinel for "no timestamp".
const ClockTimeNone = ClockTime(^uint64(0))

// IsValid reports whether t carries a real timestamp.
func (t ClockTime) IsValid() bool {
	return t != ClockTimeNone
}

// Duration converts t to a time.Duration. Returns 0 for ClockTimeNone.
func (t ClockTime) Duration() time.Duration {
	if !t.IsValid() {
		return 0
	}
	return time.Duration(t)
}

// ClockTimeFromDuration converts a time.Duration to a ClockTime.
// Negative durations map to ClockTimeNone.
func ClockTimeFromDuration(d time.Duration) ClockTime {
	if d < 0 {
		return ClockTimeNone
	}
	return ClockTime(d)
}

func (t ClockTime) String() string {
	if !t.IsValid() {
		return "none"
	}
	return time.Duration(t).String()
}
