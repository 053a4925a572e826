package domain

import (
	"strings"
	"time"
)

// Timing is one of the four daily buckets a reminder can fire in.
type Timing string

const (
	TimingMorning   Timing = "morning"
	TimingAfternoon Timing = "afternoon"
	TimingEvening   Timing = "evening"
	TimingNight     Timing = "night"
)

// AllTimings lists the recognized timings in day order.
var AllTimings = []Timing{TimingMorning, TimingAfternoon, TimingEvening, TimingNight}

// ParseTiming matches value against the recognized timings, ignoring case and surrounding space.
func ParseTiming(value string) (Timing, bool) {
	candidate := Timing(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether t is one of the four recognized timings.
func (t Timing) Valid() bool {
	switch t {
	case TimingMorning, TimingAfternoon, TimingEvening, TimingNight:
		return true
	default:
		return false
	}
}

func (t Timing) String() string {
	return string(t)
}

// PeriodForHour buckets a wall-clock hour into the timing it belongs to.
func PeriodForHour(hour int) Timing {
	switch {
	case hour >= 6 && hour < 12:
		return TimingMorning
	case hour >= 12 && hour < 17:
		return TimingAfternoon
	case hour >= 17 && hour < 21:
		return TimingEvening
	default:
		return TimingNight
	}
}

// PeriodAt resolves the timing for the hour of t in t's own location.
func PeriodAt(t time.Time) Timing {
	return PeriodForHour(t.Hour())
}
