// Package version reports the bridgebot build.
package version

import (
	"runtime/debug"
	"sync"
)

// Overridden with -ldflags "-X github.com/memohai/bridgebot/internal/version.Version=..." at build time.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

var readVCS sync.Once

// Get returns the build info, filling commit and time from the embedded vcs stamp when
// ldflags did not set them.
func Get() Info {
	readVCS.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
}

// GetInfo returns "version (short commit)".
func GetInfo() string {
	info := Get()
	if info.Commit == "" {
		return info.Version
	}
	short := info.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return info.Version + " (" + short + ")"
}
