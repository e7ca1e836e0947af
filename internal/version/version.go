// Package version reports build information for the extbridge binaries.
// Values are injected with -ldflags "-X github.com/dshills/extbridge/internal/version.Version=x.y.z".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/dshills/extbridge/internal/protocol"
)

var (
	// Version is the release version.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// Date is the build time in RFC3339.
	Date = "unknown"
)

// Info is the full build description.
type Info struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	Date            string `json:"date"`
	ProtocolVersion string `json:"protocol_version"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
}

// GetInfo returns the build description. A "dev" build installed with
// go install picks up the module version from the build info.
func GetInfo() Info {
	v := Version
	if v == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return Info{
		Version:         v,
		Commit:          Commit,
		Date:            Date,
		ProtocolVersion: protocol.ProtocolVersion,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the one-line version banner for name.
func String(name string) string {
	info := GetInfo()
	commit := info.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	if info.Commit != "unknown" && info.Date != "unknown" {
		return fmt.Sprintf("%s version %s (protocol %s, commit: %s, built: %s, %s, %s)",
			name, info.Version, info.ProtocolVersion, commit, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (protocol %s, %s, %s)",
		name, info.Version, info.ProtocolVersion, info.GoVersion, info.Platform)
}

// Short returns just the version.
func Short() string {
	return GetInfo().Version
}
