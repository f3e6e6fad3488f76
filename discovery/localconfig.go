package discovery

import (
	"errors"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
)

// LocalConfig defines local-only mode, where every record is processed on the node receiving it
type LocalConfig struct {
	bconfig.Header `yaml:",inline"`
}

// RequiresForwarding returns false
func (cfg *LocalConfig) RequiresForwarding() bool {
	return false
}

// NewPeerListProvider always fails since local mode has no peers
func (cfg *LocalConfig) NewPeerListProvider(parentLogger logger.Logger, selfAddress string, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	return nil, errors.New("local discovery has no peer list")
}

// VerifyConfig does nothing
func (cfg *LocalConfig) VerifyConfig() error {
	return nil
}
