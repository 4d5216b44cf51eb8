// Package version holds iqrproxy build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/imagespace/iqrproxy/internal/version.Version=v1.2.0 \
//	    -X github.com/imagespace/iqrproxy/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the version with its commit, e.g. "v1.2.0+3f2a1bc".
func String() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s+%s", Version, Commit)
}
