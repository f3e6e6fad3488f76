package dstatic

import (
	"fmt"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/discovery/dbase"
)

// Config defines the configuration for static discovery
type Config struct {
	bconfig.Header `yaml:",inline"`
	Endpoints      []string `yaml:"endpoints"` // IP addresses or hostnames of all nodes including self, optionally with port
}

// RequiresForwarding returns false for single endpoint, which can only be this node
func (cfg *Config) RequiresForwarding() bool {
	return len(cfg.Endpoints) > 1
}

// NewPeerListProvider creates a static Provider
func (cfg *Config) NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	provider, err := NewProvider(cfg.Endpoints)
	if err != nil {
		return nil, fmt.Errorf(".endpoints%w", err)
	}
	parentLogger.Infof("static peers: %v", provider.GetPeerList())
	return provider, nil
}

// VerifyConfig verifies the endpoint list
func (cfg *Config) VerifyConfig() error {
	if cfg.Endpoints == nil {
		return fmt.Errorf(".endpoints is undefined")
	}
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf(".endpoints is empty")
	}
	for i, ep := range cfg.Endpoints {
		if err := dbase.ValidateEndpoint(ep); err != nil {
			return fmt.Errorf(".endpoints[%d]: invalid endpoint '%s'", i, ep)
		}
	}
	return nil
}
