package run

import (
	"fmt"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/peerforwarder"
	"github.com/relex/peer-forwarder/receiver"
)

// Loader loads configuration from file and prepares the environments to be launched.
// It takes care of everything derived from the config file, but does not trigger anything automatically.
//
// Provider, receiver and drain workers are exposed in place of a simple main loop to allow customization, see Run().
type Loader struct {
	filepath string // config file path

	Config
	MetricFactory *promreg.MetricFactory
	Factory       peerforwarder.ClientFactory
	Sink          RecordSink
}

// Registration is a registered plugin instance with its peer forwarder
type Registration struct {
	PipelineName string
	PluginID     string
	Forwarder    base.PeerForwarder
}

// NewLoaderFromConfigFile loads and verifies config file
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}

	return &Loader{
		filepath: filepath,

		Config:        *config,
		MetricFactory: promreg.NewMetricFactory(metricPrefix, nil, nil),
		Factory:       peerforwarder.DefaultClientFactory{},
		Sink:          &logSink{logger.WithField(defs.LabelComponent, "LogSink")},
	}, nil
}

// CreateProvider creates the peer forwarder provider and registers all configured plugins
func (loader *Loader) CreateProvider(parentLogger logger.Logger) (*peerforwarder.Provider, []Registration, error) {
	provider := peerforwarder.NewProvider(parentLogger, &loader.PeerForwarder, loader.Factory, loader.MetricFactory)
	registrations := make([]Registration, 0, len(loader.Pipelines))
	for i, pipeline := range loader.Pipelines {
		for j, plugin := range pipeline.Plugins {
			forwarder, err := provider.Register(pipeline.Name, plugin.ID, plugin.IdentificationKeys)
			if err != nil {
				provider.Shutdown()
				return nil, nil, fmt.Errorf("pipelines[%d].plugins[%d]: %w", i, j, err)
			}
			registrations = append(registrations, Registration{pipeline.Name, plugin.ID, forwarder})
		}
	}
	return provider, registrations, nil
}

// LaunchReceiver starts the receiver in background
func (loader *Loader) LaunchReceiver(parentLogger logger.Logger, provider *peerforwarder.Provider) (*receiver.Server, error) {
	server := receiver.NewServer(parentLogger, receiver.Config{
		MaxRequestBytes: int64(loader.PeerForwarder.MaxRequestSize.Bytes()),
		BufferTimeout:   loader.PeerForwarder.BufferTimeout,
	}, provider, loader.MetricFactory)
	if err := server.Launch(loader.ReceiverAddress()); err != nil {
		return nil, err
	}
	return server, nil
}

// LaunchDrainWorkers starts one drain worker for each registration and returns a function to stop and wait for all of them
func (loader *Loader) LaunchDrainWorkers(parentLogger logger.Logger, registrations []Registration) func() {
	stopRequest := channels.NewSignalAwaitable()
	workerStoppedSignals := make([]channels.Awaitable, 0, len(registrations))
	for _, reg := range registrations {
		worker := newDrainWorker(parentLogger, reg.PipelineName, reg.PluginID, reg.Forwarder, loader.Sink, stopRequest, loader.MetricFactory)
		worker.Start()
		workerStoppedSignals = append(workerStoppedSignals, worker.Stopped())
	}
	return func() {
		stopRequest.Signal()
		channels.AllAwaitables(workerStoppedSignals...).WaitForever()
	}
}
