package cmd

import (
	"fmt"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/run"
	"github.com/relex/peer-forwarder/util"
)

type verifyCommandState struct {
	Config string `help:"Configuration file path"`
	Dump   bool   `help:"Print the configuration with defaults filled"`
}

var verifyCmd verifyCommandState = verifyCommandState{
	Config: "config.yml",
}

func (cmd *verifyCommandState) run(args []string) {
	cfg, err := run.LoadConfigFile(cmd.Config)
	if err != nil {
		logger.Fatalf("%s: %s", cmd.Config, err.Error())
	}
	if cmd.Dump {
		doc, merr := util.MarshalYaml(cfg)
		if merr != nil {
			logger.Fatalf("failed to dump config: %s", merr.Error())
		}
		fmt.Print(doc)
	}
	logger.Infof("%s: OK", cmd.Config)
}
