package util

import (
	"sync/atomic"
)

// RunOnce is a function wrapper that calls the underlying function at most once.
// It returns true when the underlying function is actually called.
//
// This can be used to protect e.g. resource closing or cleanup, which should be called exactly once
type RunOnce func() bool

// NewRunOnce creates a function that would call the given "f" at most once
//
// Unlike sync.Once, concurrent callers losing the race return immediately without waiting for "f"
func NewRunOnce(f func()) RunOnce {
	var invoked atomic.Bool
	return func() bool {
		if invoked.CompareAndSwap(false, true) {
			f()
			return true
		}
		return false
	}
}
