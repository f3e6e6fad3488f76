package util

import (
	"time"
)

// ResetTimer resets the given timer properly, which must be either fired and drained or still active
func ResetTimer(timer *time.Timer, duration time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(duration)
}
