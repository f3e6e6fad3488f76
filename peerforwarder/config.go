package peerforwarder

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/codec"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/util"
)

// Config defines the configuration of peer forwarding, shared by all registrations in the process
type Config struct {
	NodeAddress    string                        `yaml:"nodeAddress"`    // Identity of this node in the ring, optionally with port
	Port           int                           `yaml:"port"`           // Receive port, also the default port of peers
	BufferSize     int                           `yaml:"bufferSize"`     // Capacity of each receive buffer
	BatchSize      int                           `yaml:"batchSize"`      // Max records returned by ReceiveRecords
	RequestTimeout time.Duration                 `yaml:"requestTimeout"` // Timeout of each forwarding request
	BufferTimeout  time.Duration                 `yaml:"bufferTimeout"`  // Timeout of inbound writes into receive buffers
	MaxRequestSize datasize.ByteSize             `yaml:"maxRequestSize"` // Max size of inbound request body
	Compression    string                        `yaml:"compression"`    // "gzip" or "none"
	Discovery      bconfig.DiscoveryConfigHolder `yaml:"discovery"`
}

// SetDefaults fills unset fields with defaults
func (cfg *Config) SetDefaults() {
	if cfg.Port == 0 {
		cfg.Port = defs.DefaultPort
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defs.DefaultBufferSize
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defs.DefaultBatchSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defs.ForwarderRequestTimeout
	}
	if cfg.BufferTimeout == 0 {
		cfg.BufferTimeout = defs.ReceiverBufferTimeout
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = datasize.ByteSize(defs.DefaultMaxRequestBytes)
	}
	if cfg.Compression == "" {
		cfg.Compression = codec.CompressionNone
	}
}

// VerifyConfig verifies the configuration after defaults are set
func (cfg *Config) VerifyConfig() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf(".port: invalid %d", cfg.Port)
	}
	if len(cfg.NodeAddress) > 0 {
		if _, _, err := util.SplitHostPortDefault(cfg.NodeAddress, cfg.Port); err != nil {
			return fmt.Errorf(".nodeAddress: %w", err)
		}
	}
	if cfg.BufferSize <= 0 {
		return fmt.Errorf(".bufferSize: must be positive")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf(".batchSize: must be positive")
	}
	if cfg.BatchSize > cfg.BufferSize {
		return fmt.Errorf(".batchSize: %d larger than .bufferSize %d", cfg.BatchSize, cfg.BufferSize)
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf(".requestTimeout: negative")
	}
	if cfg.BufferTimeout < 0 {
		return fmt.Errorf(".bufferTimeout: negative")
	}
	if !codec.IsValidCompression(cfg.Compression) {
		return fmt.Errorf(".compression: unsupported '%s'", cfg.Compression)
	}
	if cfg.Discovery.IsEmpty() {
		return fmt.Errorf(".discovery is undefined")
	}
	if err := cfg.Discovery.Value.VerifyConfig(); err != nil {
		return fmt.Errorf(".discovery%w", err)
	}
	return nil
}

// RequiresForwarding tells whether the discovery may assign records to other nodes
func (cfg *Config) RequiresForwarding() bool {
	return !cfg.Discovery.IsEmpty() && cfg.Discovery.Value.RequiresForwarding()
}

// SelfAddress returns the node address with port, or empty string if unset
func (cfg *Config) SelfAddress() string {
	if len(cfg.NodeAddress) == 0 {
		return ""
	}
	host, port, err := util.SplitHostPortDefault(cfg.NodeAddress, cfg.Port)
	if err != nil {
		return ""
	}
	return util.JoinHostPort(host, port)
}
