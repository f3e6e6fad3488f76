// Package cmd provides list of commands
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "peer-forwarder routes records of stateful plugins to the nodes owning their keys", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("run ...", "Run peer forwarding node", &runCmd, runCmd.run)
	config.AddCmdWithArgs("verify ...", "Verify configuration file", &verifyCmd, verifyCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	// trigger init

	config.Execute()
}
