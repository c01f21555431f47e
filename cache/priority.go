package cache

import "time"

// Priority ranks entries for retention. Short windows are what users
// are looking at right now, so they keep their data longest and are
// evicted last.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TTLMultiplier returns the factor applied to the configured TTL for
// entries of this priority.
func (p Priority) TTLMultiplier() float64 {
	switch p {
	case PriorityHigh:
		return 2.0
	case PriorityLow:
		return 0.5
	default:
		return 1.0
	}
}

// PriorityForSpan maps a window length onto a retention priority:
// up to one day is high, up to seven days is normal, anything longer
// is low.
func PriorityForSpan(span time.Duration) Priority {
	switch {
	case span <= 24*time.Hour:
		return PriorityHigh
	case span <= 7*24*time.Hour:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
