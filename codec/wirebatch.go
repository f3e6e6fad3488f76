// Package codec defines the wire format of record batches forwarded between peers
package codec

import (
	"time"

	"github.com/relex/peer-forwarder/base"
)

// WireBatch is the body of one forwarding request, destined to one receive buffer on the peer
type WireBatch struct {
	DestinationPipelineName string      `msgpack:"destinationPipelineName"`
	DestinationPluginID     string      `msgpack:"destinationPluginId"`
	Events                  []WireEvent `msgpack:"events"`
}

// WireEvent is the serialized form of base.Record
type WireEvent struct {
	EventType    string                 `msgpack:"eventType"`
	TimeReceived time.Time              `msgpack:"timeReceived"`
	Attributes   map[string]interface{} `msgpack:"attributes,omitempty"`
	Data         map[string]interface{} `msgpack:"data"`
}

// NewWireBatch creates a WireBatch referencing the fields of given records
func NewWireBatch(pipelineName string, pluginID string, records []*base.Record) *WireBatch {
	events := make([]WireEvent, len(records))
	for i, r := range records {
		events[i] = WireEvent{
			EventType:    r.Metadata.EventType,
			TimeReceived: r.Metadata.TimeReceived,
			Attributes:   r.Metadata.Attributes,
			Data:         r.Data,
		}
	}
	return &WireBatch{
		DestinationPipelineName: pipelineName,
		DestinationPluginID:     pluginID,
		Events:                  events,
	}
}

// Records converts events back to records
func (batch *WireBatch) Records() []*base.Record {
	records := make([]*base.Record, len(batch.Events))
	for i, ev := range batch.Events {
		data := ev.Data
		if data == nil {
			data = make(map[string]interface{})
		}
		records[i] = &base.Record{
			Data: data,
			Metadata: base.RecordMetadata{
				EventType:    ev.EventType,
				TimeReceived: ev.TimeReceived,
				Attributes:   ev.Attributes,
			},
		}
	}
	return records
}
