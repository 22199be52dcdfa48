// Package version provides build-time version information.
package version

import "fmt"

// Set at build time with -ldflags "-X impose/internal/version.Version=...".
var (
	// Version is the semantic version. It is written into session files.
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	GitCommit = "unknown"
)

// String returns a one-line version summary for the CLI and server.
func String() string {
	return fmt.Sprintf("impose %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
