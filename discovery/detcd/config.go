package detcd

import (
	"fmt"
	"strings"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/defs"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Config defines the configuration for etcd discovery
type Config struct {
	bconfig.Header `yaml:",inline"`
	Endpoints      []string `yaml:"endpoints"` // etcd endpoints, e.g. "http://etcd-0:2379"
	Prefix         string   `yaml:"prefix"`    // Key prefix of peers, ending with "/"
	Register       bool     `yaml:"register"`  // Register this node by its node address
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
}

// RequiresForwarding returns true
func (cfg *Config) RequiresForwarding() bool {
	return true
}

// NewPeerListProvider connects to etcd and creates a Provider
func (cfg *Config) NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: defs.RegistryInitialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v: %w", cfg.Endpoints, err)
	}
	if !cfg.Register {
		selfAddress = ""
	}
	provider, perr := NewProvider(parentLogger, client, cfg.Prefix, selfAddress, defs.RegistrySessionTimeout)
	if perr != nil {
		_ = client.Close()
		return nil, perr
	}
	return provider, nil
}

// VerifyConfig verifies endpoints and prefix
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf(".endpoints is empty")
	}
	if len(cfg.Prefix) == 0 {
		return fmt.Errorf(".prefix is unspecified")
	}
	if !strings.HasSuffix(cfg.Prefix, "/") {
		return fmt.Errorf(".prefix must end with '/': '%s'", cfg.Prefix)
	}
	return nil
}
