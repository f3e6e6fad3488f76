package bconfig

import (
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
)

// DiscoveryConfig provides an interface for the configuration of PeerListProvider(s)
//
// All the implementations should support YAML unmarshalling
type DiscoveryConfig interface {
	BaseConfig

	// RequiresForwarding tells whether records may be owned by other nodes under this discovery
	//
	// If false, no peer list provider or hash ring is ever created
	RequiresForwarding() bool

	// NewPeerListProvider creates the provider and blocks until the initial peer list is populated
	NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error)

	VerifyConfig() error
}

// DiscoveryConfigHolder holds DiscoveryConfig
type DiscoveryConfigHolder = ConfigHolder[DiscoveryConfig]

// DiscoveryConfigCreatorTable defines the table of constructors for DiscoveryConfig implementations
type DiscoveryConfigCreatorTable = ConfigCreatorTable[DiscoveryConfig]
