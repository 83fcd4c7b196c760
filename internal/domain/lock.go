package domain

import (
	"fmt"
	"time"
)

// IsLocked is the single lock evaluator. A capsule is locked while its unlock
// instant is strictly after now; equality resolves to unlocked.
//
// Every caller that cares about visibility, countdowns, dashboard counts or
// notification eligibility must go through this function.
func IsLocked(unlockAt, now time.Time) bool {
	return unlockAt.After(now)
}

// IsUnlocked is the negation of IsLocked, provided for readability.
func IsUnlocked(unlockAt, now time.Time) bool {
	return !IsLocked(unlockAt, now)
}

// LockState is the derived visibility of a capsule at a given instant.
type LockState string

const (
	StateLocked   LockState = "locked"
	StateUnlocked LockState = "unlocked"
)

// StateAt returns the lock state of unlockAt as seen at now.
func StateAt(unlockAt, now time.Time) LockState {
	if IsLocked(unlockAt, now) {
		return StateLocked
	}
	return StateUnlocked
}

// CountdownUnit is the bucket a countdown was rendered in.
type CountdownUnit string

const (
	UnitDays      CountdownUnit = "days"
	UnitHours     CountdownUnit = "hours"
	UnitUnderHour CountdownUnit = "less_than_hour"
)

// LessThanAnHour is the fixed phrase for the smallest countdown bucket.
const LessThanAnHour = "less than an hour"

// Countdown is the remaining time until unlock, bucketed for display.
type Countdown struct {
	Unit  CountdownUnit `json:"unit"`
	Value int64         `json:"value,omitempty"`
	Text  string        `json:"text"`
}

// NewCountdown buckets the time left until unlockAt.
//
// Days and hours are both rounded up. The days bucket is used when the
// rounded day count is at least 2, the hours bucket when the rounded hour
// count is at least 2, otherwise the fixed phrase. An exact day therefore
// renders as "24 hours", and an exact two days as "2 days".
func NewCountdown(unlockAt, now time.Time) Countdown {
	diff := unlockAt.Sub(now)

	days := ceilDiv(diff, 24*time.Hour)
	if days >= 2 {
		return Countdown{Unit: UnitDays, Value: days, Text: fmt.Sprintf("%d days", days)}
	}

	hours := ceilDiv(diff, time.Hour)
	if hours >= 2 {
		return Countdown{Unit: UnitHours, Value: hours, Text: fmt.Sprintf("%d hours", hours)}
	}

	return Countdown{Unit: UnitUnderHour, Text: LessThanAnHour}
}

// DaysUntil returns the rounded-up number of days left, never negative.
func DaysUntil(unlockAt, now time.Time) int64 {
	d := ceilDiv(unlockAt.Sub(now), 24*time.Hour)
	if d < 0 {
		return 0
	}
	return d
}

// SealedMessage is the encouragement shown on a locked capsule.
func SealedMessage(unlockAt, now time.Time) string {
	days := DaysUntil(unlockAt, now)
	switch {
	case days > 30:
		return "Patience... some memories are worth waiting for."
	case days > 7:
		return "Almost there! The anticipation makes it sweeter."
	default:
		return "So close! Just a little more..."
	}
}

// ceilDiv divides d by unit rounding toward positive infinity.
func ceilDiv(d, unit time.Duration) int64 {
	q := int64(d / unit)
	if d%unit > 0 {
		q++
	}
	return q
}
