// Package discovery registers the list of all PeerListProvider implementations
package discovery

import (
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/ddns"
	"github.com/relex/peer-forwarder/discovery/detcd"
	"github.com/relex/peer-forwarder/discovery/dstatic"
	"github.com/relex/peer-forwarder/discovery/dzookeeper"
)

func init() {
	bconfig.RegisterConfigConstructors(bconfig.DiscoveryConfigCreatorTable{
		defs.DiscoveryLocal:     func() bconfig.DiscoveryConfig { return &LocalConfig{} },
		defs.DiscoveryStatic:    func() bconfig.DiscoveryConfig { return &dstatic.Config{} },
		defs.DiscoveryDNS:       func() bconfig.DiscoveryConfig { return &ddns.Config{} },
		defs.DiscoveryZookeeper: func() bconfig.DiscoveryConfig { return &dzookeeper.Config{} },
		defs.DiscoveryEtcd:      func() bconfig.DiscoveryConfig { return &detcd.Config{} },
	})
}

// Register registers all discovery config types
func Register() {
	// trigger init()
}
