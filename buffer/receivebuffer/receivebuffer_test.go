package receivebuffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/stretchr/testify/assert"
)

func makeRecords(prefix string, n int) []*base.Record {
	records := make([]*base.Record, n)
	for i := range records {
		records[i] = base.NewRecord("TRACE", map[string]interface{}{"traceId": fmt.Sprintf("%s-%d", prefix, i)})
	}
	return records
}

func TestBufferWriteRead(t *testing.T) {
	mfactory := promreg.NewMetricFactory("testbuf_", nil, nil)
	buf := New(3, 3, mfactory)

	records := makeRecords("r", 3)
	assert.NoError(t, buf.WriteAll(records, 500*time.Millisecond))
	assert.Equal(t, 3, buf.Len())

	read := buf.Read(500 * time.Millisecond)
	assert.Equal(t, records, read)
	assert.Equal(t, 0, buf.Len())

	start := time.Now()
	assert.Empty(t, buf.Read(50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, buf.Read(0))

	assert.Equal(t, `testbuf_buffer_read_records_total 3
testbuf_buffer_records 0
testbuf_buffer_write_overflows_total 0
testbuf_buffer_write_timeouts_total 0
testbuf_buffer_written_records_total 3
`, promext.DumpMetrics("", true, false, mfactory))
}

func TestBufferBatchSize(t *testing.T) {
	buf := New(10, 4, promreg.NewMetricFactory("testbuf_", nil, nil))
	records := makeRecords("r", 10)
	assert.NoError(t, buf.WriteAll(records, 0))

	assert.Equal(t, records[0:4], buf.Read(0))
	assert.Equal(t, records[4:8], buf.Read(0))
	assert.Equal(t, records[8:10], buf.Read(0))
	assert.Empty(t, buf.Read(0))
}

func TestBufferBackpressure(t *testing.T) {
	mfactory := promreg.NewMetricFactory("testbuf_", nil, nil)
	buf := New(3, 3, mfactory)

	assert.NoError(t, buf.WriteAll(makeRecords("a", 2), 0))

	t.Run("blocks then times out", func(tt *testing.T) {
		start := time.Now()
		assert.ErrorIs(tt, buf.WriteAll(makeRecords("b", 2), 100*time.Millisecond), ErrTimeout)
		assert.GreaterOrEqual(tt, time.Since(start), 100*time.Millisecond)
		assert.Equal(tt, 2, buf.Len(), "nothing partially written")
	})

	t.Run("no wait", func(tt *testing.T) {
		assert.ErrorIs(tt, buf.WriteAll(makeRecords("b", 2), 0), ErrTimeout)
	})

	t.Run("overflow fails immediately", func(tt *testing.T) {
		start := time.Now()
		assert.ErrorIs(tt, buf.WriteAll(makeRecords("c", 4), 10*time.Second), ErrSizeOverflow)
		assert.Less(tt, time.Since(start), time.Second)
	})

	t.Run("unblocked by read", func(tt *testing.T) {
		pending := makeRecords("d", 2)
		done := make(chan error, 1)
		go func() {
			done <- buf.WriteAll(pending, 5*time.Second)
		}()
		time.Sleep(50 * time.Millisecond)
		assert.Len(tt, buf.Read(0), 2)
		assert.NoError(tt, <-done)
		assert.Equal(tt, pending, buf.Read(0))
	})

	assert.Equal(t, `testbuf_buffer_read_records_total 4
testbuf_buffer_records 0
testbuf_buffer_write_overflows_total 1
testbuf_buffer_write_timeouts_total 2
testbuf_buffer_written_records_total 4
`, promext.DumpMetrics("", true, false, mfactory))
}

func TestBufferConcurrentWriters(t *testing.T) {
	buf := New(16, 5, promreg.NewMetricFactory("testbuf_", nil, nil))

	wg := sync.WaitGroup{}
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, buf.WriteAll(makeRecords(fmt.Sprintf("w%d-%d", w, i), 4), 5*time.Second))
			}
		}(w)
	}

	received := make(map[string]int)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for total := 0; total < 8*20*4; {
			batch := buf.Read(time.Second)
			if len(batch) == 0 {
				assert.Fail(t, "reader starved")
				return
			}
			assert.LessOrEqual(t, len(batch), 5)
			for _, r := range batch {
				received[r.GetString("traceId")]++
			}
			total += len(batch)
		}
	}()
	wg.Wait()
	<-readDone

	assert.Len(t, received, 8*20*4)
	assert.Equal(t, 0, buf.Len())
}

func TestBufferClose(t *testing.T) {
	buf := New(2, 2, promreg.NewMetricFactory("testbuf_", nil, nil))
	assert.NoError(t, buf.WriteAll(makeRecords("a", 2), 0))

	done := make(chan error, 1)
	go func() {
		done <- buf.WriteAll(makeRecords("b", 1), 10*time.Second)
	}()
	time.Sleep(50 * time.Millisecond)
	buf.Close()
	buf.Close()
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.ErrorIs(t, buf.WriteAll(makeRecords("c", 1), 0), ErrClosed)

	assert.Len(t, buf.Read(0), 2, "queued records remain readable")
}
