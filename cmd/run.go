package cmd

import (
	"context"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/run"
	"github.com/relex/peer-forwarder/util"
)

type runCommandState struct {
	Config      string `help:"Configuration file path"`
	Listen      string `help:"Override the receiver address of the config file, e.g. 0.0.0.0:4994"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode    bool   `help:"Use test mode config: short timeouts and fast discovery retry"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	Listen:      "",
	MetricsAddr: ":9335",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	run.Run(cmd.Config, cmd.Listen)

	ctx, cancel := context.WithTimeout(context.Background(), defs.ReceiverShutdownTimeout)
	defer cancel()
	if err := msrv.Shutdown(ctx); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}
