package base

import (
	"errors"
)

// ErrEmptyIdentificationKeys is returned when a plugin registers for peer forwarding without any identification key
var ErrEmptyIdentificationKeys = errors.New("identification keys are empty")

// ErrDuplicateRegistration is returned when the same pipeline and plugin are registered more than once
var ErrDuplicateRegistration = errors.New("peer forwarder already registered")

// ErrProviderShutdown is returned when registering a peer forwarder after its provider has been shut down
var ErrProviderShutdown = errors.New("peer forwarder provider is shut down")

// PeerForwarder partitions record batches of one plugin instance among peers
//
// All methods must be safe to be called concurrently by multiple pipeline workers
type PeerForwarder interface {

	// ForwardRecords sends non-local records to their owning peers and returns the records to be processed locally
	//
	// Records which failed to be forwarded are included in the result, so that no record is ever lost
	ForwardRecords(records []*Record) []*Record

	// ReceiveRecords returns records forwarded to this node by peers, up to the configured batch size
	ReceiveRecords() []*Record
}
