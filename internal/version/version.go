// Package version contains build version information.
package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	-X github.com/bissquit/incident-bot/internal/version.Version=1.2.3
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a human readable build description.
func String() string {
	return fmt.Sprintf("incident-bot %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

// UserAgent identifies the bot to the external APIs it calls.
func UserAgent() string {
	return "incident-bot/" + Version
}
