package helper

import (
	"fmt"
	"math/rand"
	"time"
)

// FormatTTL renders a duration the way the CLI tables display it.
func FormatTTL(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d.Seconds() >= 1 {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Jitter returns d shifted by a random amount within ±fraction of d.
// Spreads periodic work so replicas do not fire in lockstep.
func Jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	maxDelta := float64(d) * fraction
	delta := (rand.Float64()*2 - 1) * maxDelta
	return d + time.Duration(delta)
}
