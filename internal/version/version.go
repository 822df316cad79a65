// Package version holds build metadata for the finrag binary, set with
// -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/finrag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/finrag-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/finrag-go/internal/version.BuildDate=2026-01-01"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the short git SHA.
	Commit = "unknown"
	// BuildDate is the UTC build date.
	BuildDate = "unknown"
)

// Info is the build metadata reported by `finrag version` and the
// finrag_build_info metric.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata. When Commit was not injected it falls
// back to the VCS revision embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if info.Commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					info.Commit = s.Value[:7]
				}
			}
		}
	}
	return info
}

// String renders the one-line form printed by the CLI.
func (i Info) String() string {
	return fmt.Sprintf("finrag %s (commit %s, built %s, %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion)
}

// UserAgent is sent on outbound HTTP calls to embedding and completion
// services.
func UserAgent() string { return "finrag/" + Version }
