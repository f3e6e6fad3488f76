package run

import (
	"fmt"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/discovery"
	"github.com/relex/peer-forwarder/peerforwarder"
	"github.com/relex/peer-forwarder/util"
	"golang.org/x/exp/slices"
)

// Config defines the root of peer-forwarder config file
type Config struct {
	ListenAddress string               `yaml:"listenAddress"` // Receiver address, ":<peerForwarder.port>" if empty
	PeerForwarder peerforwarder.Config `yaml:"peerForwarder"`
	Pipelines     []PipelineConfig     `yaml:"pipelines"`
}

// PipelineConfig defines a pipeline and its stateful plugins requiring peer forwarding
type PipelineConfig struct {
	Name    string         `yaml:"name"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// PluginConfig defines a plugin instance and the record keys to correlate by
type PluginConfig struct {
	ID                 string   `yaml:"id"`
	IdentificationKeys []string `yaml:"identificationKeys"`
}

func init() {
	discovery.Register()
}

// LoadConfigFile loads config from the path, fills defaults and verifies all configurations
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		configLoadFailureCounter.Inc()
		return nil, err
	}
	cref.PeerForwarder.SetDefaults()
	if err := cref.VerifyConfig(); err != nil {
		configLoadFailureCounter.Inc()
		return nil, err
	}
	logger.Infof("loaded %d pipelines from %s", len(cref.Pipelines), filepath)
	configLoadSuccessCounter.Inc()
	return cref, nil
}

// VerifyConfig verifies the whole configuration after defaults are set
func (cfg *Config) VerifyConfig() error {
	if err := cfg.PeerForwarder.VerifyConfig(); err != nil {
		return fmt.Errorf("peerForwarder%w", err)
	}
	if len(cfg.Pipelines) == 0 {
		return fmt.Errorf("pipelines is empty")
	}
	pipelineNames := make([]string, 0, len(cfg.Pipelines))
	for i, pipeline := range cfg.Pipelines {
		if len(pipeline.Name) == 0 {
			return fmt.Errorf("pipelines[%d].name is unspecified", i)
		}
		if slices.Contains(pipelineNames, pipeline.Name) {
			return fmt.Errorf("pipelines[%d].name: duplicate '%s'", i, pipeline.Name)
		}
		pipelineNames = append(pipelineNames, pipeline.Name)
		if err := pipeline.verifyPlugins(); err != nil {
			return fmt.Errorf("pipelines[%d]%w", i, err)
		}
	}
	return nil
}

func (pipeline *PipelineConfig) verifyPlugins() error {
	if len(pipeline.Plugins) == 0 {
		return fmt.Errorf(".plugins is empty")
	}
	pluginIDs := make([]string, 0, len(pipeline.Plugins))
	for i, plugin := range pipeline.Plugins {
		if len(plugin.ID) == 0 {
			return fmt.Errorf(".plugins[%d].id is unspecified", i)
		}
		if slices.Contains(pluginIDs, plugin.ID) {
			return fmt.Errorf(".plugins[%d].id: duplicate '%s'", i, plugin.ID)
		}
		pluginIDs = append(pluginIDs, plugin.ID)
		if len(plugin.IdentificationKeys) == 0 {
			return fmt.Errorf(".plugins[%d].identificationKeys is empty", i)
		}
	}
	return nil
}

// ReceiverAddress returns the address for the receiver to listen on
func (cfg *Config) ReceiverAddress() string {
	if len(cfg.ListenAddress) > 0 {
		return cfg.ListenAddress
	}
	return util.JoinHostPort("", cfg.PeerForwarder.Port)
}
