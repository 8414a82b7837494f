// Package version reports the build version of the engine
package version

import (
	"runtime/debug"
	"sync"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/hyperterse/queryengine/core/version.Version=v1.2.3 -X github.com/hyperterse/queryengine/core/version.CommitHash=abc123"
var (
	Version    = "dev"
	CommitHash = ""
)

// Info is the JSON result of the version operation
type Info struct {
	Commit  string `json:"commit"`
	Version string `json:"version"`
}

var vcsRevision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
})

// Get returns the semantic version and commit hash. Without a linked commit
// hash the VCS revision recorded by the Go toolchain is used.
func Get() Info {
	commit := CommitHash
	if commit == "" {
		commit = vcsRevision()
	}
	return Info{Commit: commit, Version: Version}
}
