package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/relex/gotils/logger"
)

type rootCommandState struct {
	CPUProfile string `name:"cpuprofile" help:"Write CPU profile to file."`
	MemProfile string `name:"memprofile" help:"Write heap profile to file at exit."`
	Trace      string `help:"Write execution trace to file."`

	stoppers []func()
}

var rootCmd rootCommandState

func (cmd *rootCommandState) preRun() {
	if cmd.CPUProfile != "" {
		f := createProfileFile("CPU profile", cmd.CPUProfile)
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Fatalf("failed to start CPU profiling: %s", err.Error())
		}
		cmd.stoppers = append(cmd.stoppers, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	if cmd.MemProfile != "" {
		f := createProfileFile("heap profile", cmd.MemProfile)
		cmd.stoppers = append(cmd.stoppers, func() {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				logger.Errorf("failed to write heap profile: %s", err.Error())
			}
			f.Close()
		})
	}

	if cmd.Trace != "" {
		f := createProfileFile("trace", cmd.Trace)
		if err := trace.Start(f); err != nil {
			logger.Fatalf("failed to start tracing: %s", err.Error())
		}
		cmd.stoppers = append(cmd.stoppers, func() {
			trace.Stop()
			f.Close()
		})
	}
}

func (cmd *rootCommandState) postRun() {
	for i := len(cmd.stoppers) - 1; i >= 0; i-- {
		cmd.stoppers[i]()
	}
	cmd.stoppers = nil
}

func createProfileFile(title string, path string) *os.File {
	f, err := os.Create(path)
	if err != nil {
		logger.Fatalf("failed to create %s %s: %s", title, path, err.Error())
	}
	logger.Infof("start writing %s to %s", title, path)
	return f
}
