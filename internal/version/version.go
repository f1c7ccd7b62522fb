// Package version exposes build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time
var (
	VersionTag = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	Commit    string `json:"commit"`
	Platform  string `json:"platform"`
	GoVersion string `json:"go_version"`
}

// Get returns build metadata for the running binary
func Get() Info {
	return Info{
		Version:   VersionTag,
		BuildTime: BuildTime,
		Commit:    CommitHash,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("buddy %s (%s, built %s)", i.Version, i.Commit, i.BuildTime)
}
