// Package testdata provides access to shared sample config for testing
package testdata

import (
	"path/filepath"
	"runtime"
)

var absoluteDirPath string

func init() {
	_, thisFile, _, _ := runtime.Caller(0)
	absoluteDirPath = filepath.Dir(thisFile)
}

// GetConfigPath returns the path of the sample config with static discovery
func GetConfigPath() string {
	return GetPath("config_sample.yml")
}

// GetPath returns the absolute path of a file under testdata
func GetPath(name string) string {
	return filepath.Join(absoluteDirPath, name)
}
