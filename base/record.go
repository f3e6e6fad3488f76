package base

import (
	"fmt"
	"strings"
	"time"
)

// Record defines the structure of a record flowing through a pipeline
//
// The peer forwarder only reads fields by identification key and passes Metadata through unchanged
type Record struct {
	Data     map[string]interface{} // Structured fields, nested objects are map[string]interface{}
	Metadata RecordMetadata
}

// RecordMetadata is the envelope of a Record, never inspected for ownership
type RecordMetadata struct {
	EventType    string                 // e.g. "LOG", "TRACE"
	TimeReceived time.Time              // When the record entered the originating node
	Attributes   map[string]interface{} // Free-form attributes, may be nil
}

// NewRecord creates a record with the given data and type, received now
func NewRecord(eventType string, data map[string]interface{}) *Record {
	return &Record{
		Data: data,
		Metadata: RecordMetadata{
			EventType:    eventType,
			TimeReceived: time.Now(),
			Attributes:   nil,
		},
	}
}

// Get looks up a field by key
//
// Keys may address nested fields with slashes, e.g. "resource/service.name" or "/traceId"
func (record *Record) Get(key string) (interface{}, bool) {
	var current interface{} = record.Data
	for _, part := range strings.Split(strings.TrimPrefix(key, "/"), "/") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// GetString returns the field value as string, or empty string if missing
//
// Missing and null fields are indistinguishable on purpose, they hash the same way
func (record *Record) GetString(key string) string {
	value, found := record.Get(key)
	if !found || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
