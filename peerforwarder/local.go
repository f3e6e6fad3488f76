package peerforwarder

import (
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/buffer/receivebuffer"
)

// localForwarder processes every record on this node
//
// It still drains its receive buffer, so that records sent by peers with a different view of membership are not lost
type localForwarder struct {
	buffer  *receivebuffer.Buffer
	metrics forwarderMetrics
}

func newLocalForwarder(buffer *receivebuffer.Buffer, metrics forwarderMetrics) *localForwarder {
	return &localForwarder{
		buffer:  buffer,
		metrics: metrics,
	}
}

// ForwardRecords returns the input as it is
func (f *localForwarder) ForwardRecords(records []*base.Record) []*base.Record {
	f.metrics.localRecordsTotal.Add(uint64(len(records)))
	return records
}

// ReceiveRecords returns records currently in the receive buffer without waiting
func (f *localForwarder) ReceiveRecords() []*base.Record {
	return receiveFromBuffer(f.buffer, &f.metrics)
}

func receiveFromBuffer(buffer *receivebuffer.Buffer, metrics *forwarderMetrics) []*base.Record {
	records := buffer.Read(0)
	metrics.receivedRecordsTotal.Add(uint64(len(records)))
	return records
}
