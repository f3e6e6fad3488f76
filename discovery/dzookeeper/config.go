package dzookeeper

import (
	"fmt"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dbase"
)

// Config defines the configuration for ZooKeeper discovery
type Config struct {
	bconfig.Header `yaml:",inline"`
	Servers        []string `yaml:"servers"`  // ZooKeeper servers "host:port"
	RootPath       string   `yaml:"rootPath"` // Parent node of all peer nodes
	Register       bool     `yaml:"register"` // Register this node by its node address
}

// RequiresForwarding returns true
func (cfg *Config) RequiresForwarding() bool {
	return true
}

// NewPeerListProvider connects to ZooKeeper and creates a Provider
func (cfg *Config) NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	connLogger := zkLogger{parentLogger.WithField(defs.LabelComponent, "ZookeeperClient")}
	conn, _, err := zk.Connect(cfg.Servers, defs.RegistrySessionTimeout, zk.WithLogger(connLogger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v: %w", cfg.Servers, err)
	}
	if !cfg.Register {
		selfAddress = ""
	}
	provider, perr := NewProvider(parentLogger, conn, cfg.RootPath, selfAddress)
	if perr != nil {
		conn.Close()
		return nil, perr
	}
	return provider, nil
}

// VerifyConfig verifies servers and path
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Servers) == 0 {
		return fmt.Errorf(".servers is empty")
	}
	for i, s := range cfg.Servers {
		if err := dbase.ValidateEndpoint(s); err != nil {
			return fmt.Errorf(".servers[%d]: %w", i, err)
		}
	}
	if len(cfg.RootPath) == 0 {
		return fmt.Errorf(".rootPath is unspecified")
	}
	if !strings.HasPrefix(cfg.RootPath, "/") {
		return fmt.Errorf(".rootPath must be absolute: '%s'", cfg.RootPath)
	}
	return nil
}

type zkLogger struct {
	logger logger.Logger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}
