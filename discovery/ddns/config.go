package ddns

import (
	"fmt"
	"net"

	"github.com/jonboulle/clockwork"
	"github.com/miekg/dns"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
)

const resolvConfPath = "/etc/resolv.conf"

// Config defines the configuration for DNS discovery
type Config struct {
	bconfig.Header `yaml:",inline"`
	Domain         string `yaml:"domain"` // Domain name resolving to all nodes, e.g. headless service of Kubernetes
	Server         string `yaml:"server"` // Optional DNS server "host:port", default to the first nameserver in /etc/resolv.conf
}

// RequiresForwarding returns true
func (cfg *Config) RequiresForwarding() bool {
	return true
}

// NewPeerListProvider creates a DNS Provider, which blocks until the first resolution is done
func (cfg *Config) NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	return NewProvider(parentLogger, cfg, clockwork.NewRealClock(), metricCreator)
}

// VerifyConfig verifies the domain name and server
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Domain) == 0 {
		return fmt.Errorf(".domain is unspecified")
	}
	if _, ok := dns.IsDomainName(cfg.Domain); !ok {
		return fmt.Errorf(".domain: invalid name '%s'", cfg.Domain)
	}
	if len(cfg.Server) > 0 {
		if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
			return fmt.Errorf(".server: %w", err)
		}
	}
	return nil
}

func (cfg *Config) resolveServer() (string, error) {
	if len(cfg.Server) > 0 {
		return cfg.Server, nil
	}
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return "", err
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameserver in %s", resolvConfPath)
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}
