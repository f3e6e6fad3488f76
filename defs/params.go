package defs

import (
	"time"
)

var (
	// DefaultPort is the receive port of peer forwarding, also used for peers without explicit port
	DefaultPort = 4994

	// DefaultBufferSize is the capacity in records of each receive buffer
	DefaultBufferSize = 512

	// DefaultBatchSize is the maximum numbers of records returned by one read from receive buffer
	DefaultBatchSize = 48

	// DefaultMaxRequestBytes is the maximum size of an inbound forwarding request body
	DefaultMaxRequestBytes = 10 * 1024 * 1024
)

var (
	// ForwarderRequestTimeout is the default timeout of one forwarding request including connection and response
	//
	// A stuck peer costs at most this long to a pipeline worker before its records are processed locally
	ForwarderRequestTimeout = 10 * time.Second

	// ForwarderConnectionTimeout is for establishing a TCP connection to peer
	ForwarderConnectionTimeout = 5 * time.Second

	// ForwarderMaxIdleConnsPerPeer is the size of idle keep-alive connection pool to each peer
	ForwarderMaxIdleConnsPerPeer = 8

	// ReceiverBufferTimeout is how long an inbound request may wait for free space in a receive buffer
	ReceiverBufferTimeout = 1 * time.Second

	// ReceiverReadTimeout is the maximum duration to read an inbound request including body
	ReceiverReadTimeout = 30 * time.Second

	// ReceiverShutdownTimeout is how long to wait for in-flight inbound requests at shutdown
	ReceiverShutdownTimeout = 15 * time.Second

	// DrainReadTimeout is how long a drain worker waits on an empty receive buffer before checking for stop
	DrainReadTimeout = 500 * time.Millisecond
)

var (
	// DNSMinTTL is the lower bound of refresh interval of DNS discovery
	DNSMinTTL = 10 * time.Second

	// DNSMaxTTL is the upper bound of refresh interval of DNS discovery
	//
	// Record TTLs above the bound are ignored to pick up new peers in time
	DNSMaxTTL = 20 * time.Second

	// DNSQueryTimeout is the timeout of one DNS exchange
	DNSQueryTimeout = 5 * time.Second

	// RegistrySessionTimeout is the session timeout of ZooKeeper or the lease TTL of etcd for self-registration
	RegistrySessionTimeout = 10 * time.Second

	// RegistryRetryMaxInterval is the maximum delay between re-watch attempts after registry failures
	RegistryRetryMaxInterval = 30 * time.Second

	// RegistryInitialTimeout is how long to wait at construction for the first peer list from registry
	RegistryInitialTimeout = 30 * time.Second
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeout and minimal retry delay
func EnableTestMode() {
	ForwarderRequestTimeout = 1 * time.Second
	ForwarderConnectionTimeout = 500 * time.Millisecond
	ReceiverBufferTimeout = 200 * time.Millisecond
	ReceiverShutdownTimeout = 1 * time.Second
	DrainReadTimeout = 50 * time.Millisecond
	DNSQueryTimeout = 1 * time.Second
	RegistryRetryMaxInterval = 200 * time.Millisecond
	RegistryInitialTimeout = 2 * time.Second
}
