// Package run runs the peer forwarding node
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/defs"
)

// Run runs the node until stopped by signals
//
// A non-empty listenAddress overrides the receiver address of the config file
func Run(configFile string, listenAddress string) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, "peerforwarder_")
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}
	if len(listenAddress) > 0 {
		loader.ListenAddress = listenAddress
	}

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	provider, registrations, providerErr := loader.CreateProvider(logger.Root())
	if providerErr != nil {
		logger.Fatal(providerErr)
	}
	if provider.IsPeerForwardingRequired() {
		runLogger.Infof("peer forwarding enabled for %d registrations", len(registrations))
	} else {
		runLogger.Info("peer forwarding not required, processing all records locally")
	}

	server, serverErr := loader.LaunchReceiver(logger.Root(), provider)
	if serverErr != nil {
		logger.Fatal(serverErr)
	}
	stopDrainWorkers := loader.LaunchDrainWorkers(logger.Root(), registrations)

	// wait for shutdown signal
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		s := <-sigChan
		runLogger.Infof("received %s, shutting down", s)
	}

	Shutdown(runLogger, server, provider, stopDrainWorkers)
	runLogger.Info("clean exit")
}

// receiverShutdowner is implemented by receiver.Server
type receiverShutdowner interface {
	Shutdown(ctx context.Context) error
}

// providerShutdowner is implemented by peerforwarder.Provider
type providerShutdowner interface {
	Shutdown()
}

// Shutdown stops accepting forwarded records, then stops discovery and drains all buffers one final time
func Shutdown(runLogger logger.Logger, server receiverShutdowner, provider providerShutdowner, stopDrainWorkers func()) {
	ctx, cancel := context.WithTimeout(context.Background(), defs.ReceiverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		runLogger.Warnf("receiver: %s", err.Error())
	}
	provider.Shutdown()
	stopDrainWorkers()
}
