// Package receivebuffer provides the bounded buffer of records forwarded from peers, pending local processing
package receivebuffer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when space isn't freed in time for the whole batch
	ErrTimeout = errors.New("timed out waiting for buffer space")

	// ErrSizeOverflow is returned when the batch is larger than the total capacity and could never fit
	ErrSizeOverflow = errors.New("batch larger than buffer capacity")

	// ErrClosed is returned for writes after Close
	ErrClosed = errors.New("buffer closed")
)

// Buffer is a bounded FIFO of records with all-or-nothing batch writes
//
// Capacity is reserved by a weighted semaphore before records are queued, so the queue channel never blocks writers
type Buffer struct {
	capacity  int
	batchSize int
	space     *semaphore.Weighted
	queue     chan *base.Record
	writeLock sync.Mutex // keeps records of one batch contiguous in the queue
	closed    atomic.Bool
	closeCtx  context.Context
	closeFunc context.CancelFunc
	metrics   bufferMetrics
}

type bufferMetrics struct {
	records        promext.RWGauge
	writtenTotal   promext.RWCounter
	readTotal      promext.RWCounter
	timeoutsTotal  promext.RWCounter
	overflowsTotal promext.RWCounter
}

// New creates a Buffer holding up to capacity records and returning up to batchSize records per Read
func New(capacity int, batchSize int, metricCreator promreg.MetricCreator) *Buffer {
	if capacity <= 0 {
		panic("capacity must be positive")
	}
	if batchSize <= 0 {
		panic("batchSize must be positive")
	}
	closeCtx, closeFunc := context.WithCancel(context.Background())
	buf := &Buffer{
		capacity:  capacity,
		batchSize: batchSize,
		space:     semaphore.NewWeighted(int64(capacity)),
		queue:     make(chan *base.Record, capacity),
		closeCtx:  closeCtx,
		closeFunc: closeFunc,
		metrics: bufferMetrics{
			records:        metricCreator.AddOrGetGauge("buffer_records", "Numbers of records currently in receive buffer", nil, nil),
			writtenTotal:   metricCreator.AddOrGetCounter("buffer_written_records_total", "Numbers of records written to receive buffer", nil, nil),
			readTotal:      metricCreator.AddOrGetCounter("buffer_read_records_total", "Numbers of records read from receive buffer", nil, nil),
			timeoutsTotal:  metricCreator.AddOrGetCounter("buffer_write_timeouts_total", "Numbers of batch writes timed out waiting for space", nil, nil),
			overflowsTotal: metricCreator.AddOrGetCounter("buffer_write_overflows_total", "Numbers of batch writes larger than capacity", nil, nil),
		},
	}
	buf.metrics.records.Set(0)
	return buf
}

// Capacity returns the maximum numbers of records in buffer
func (buf *Buffer) Capacity() int {
	return buf.capacity
}

// BatchSize returns the maximum numbers of records returned by Read
func (buf *Buffer) BatchSize() int {
	return buf.batchSize
}

// Len returns the current numbers of queued records
func (buf *Buffer) Len() int {
	return len(buf.queue)
}

// WriteAll enqueues all the records or none of them
//
// It blocks up to timeout for enough space and then fails with ErrTimeout. A batch larger than capacity fails immediately.
func (buf *Buffer) WriteAll(records []*base.Record, timeout time.Duration) error {
	if buf.closed.Load() {
		return ErrClosed
	}
	n := len(records)
	if n == 0 {
		return nil
	}
	if n > buf.capacity {
		buf.metrics.overflowsTotal.Inc()
		return ErrSizeOverflow
	}

	if timeout <= 0 {
		if !buf.space.TryAcquire(int64(n)) {
			buf.metrics.timeoutsTotal.Inc()
			return ErrTimeout
		}
	} else {
		ctx, cancel := context.WithTimeout(buf.closeCtx, timeout)
		err := buf.space.Acquire(ctx, int64(n))
		cancel()
		if err != nil {
			if buf.closed.Load() {
				return ErrClosed
			}
			buf.metrics.timeoutsTotal.Inc()
			return ErrTimeout
		}
	}

	buf.writeLock.Lock()
	for _, r := range records {
		buf.queue <- r
	}
	buf.writeLock.Unlock()

	buf.metrics.writtenTotal.Add(uint64(n))
	buf.metrics.records.Add(int64(n))
	return nil
}

// Read returns up to batchSize records in write order
//
// It waits up to timeout for the first record if the buffer is empty, and returns an empty slice if nothing arrives
func (buf *Buffer) Read(timeout time.Duration) []*base.Record {
	var first *base.Record
	select {
	case first = <-buf.queue:
	default:
		if timeout <= 0 {
			return []*base.Record{}
		}
		timer := time.NewTimer(timeout)
		select {
		case first = <-buf.queue:
			timer.Stop()
		case <-timer.C:
			return []*base.Record{}
		}
	}

	batch := make([]*base.Record, 1, buf.batchSize)
	batch[0] = first
drain:
	for len(batch) < buf.batchSize {
		select {
		case r := <-buf.queue:
			batch = append(batch, r)
		default:
			break drain
		}
	}

	buf.space.Release(int64(len(batch)))
	buf.metrics.readTotal.Add(uint64(len(batch)))
	buf.metrics.records.Sub(int64(len(batch)))
	return batch
}

// Close rejects further writes and aborts blocked writers. Queued records remain readable.
func (buf *Buffer) Close() {
	if buf.closed.CompareAndSwap(false, true) {
		buf.closeFunc()
	}
}
