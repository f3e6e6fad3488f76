package util

import (
	"sync"
	"sync/atomic"
)

// TrackedWaitGroup is a sync.WaitGroup with observable count, to report pending operations at shutdown
type TrackedWaitGroup struct {
	wg    sync.WaitGroup
	count atomic.Int64
}

// Add adds delta to the counter
func (twg *TrackedWaitGroup) Add(delta int) {
	twg.wg.Add(delta)
	twg.count.Add(int64(delta))
}

// Done decrements the counter by one
func (twg *TrackedWaitGroup) Done() {
	twg.count.Add(-1)
	twg.wg.Done()
}

// Peek returns the current counter
func (twg *TrackedWaitGroup) Peek() int {
	return int(twg.count.Load())
}

// Wait blocks until the counter is zero
func (twg *TrackedWaitGroup) Wait() {
	twg.wg.Wait()
}
