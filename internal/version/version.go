// Package version identifies the running build. Version is compared
// against GitHub release tags by the version check.
package version

// Name is the product name shown in logs and the CLI.
const Name = "CrowdSec Monitor API"

// Overridden at build time with -ldflags "-X ...".
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Full returns Version, with commit and build time when both are known.
func Full() string {
	if BuildTime == "unknown" || GitCommit == "unknown" {
		return Version
	}
	return Version + " (commit: " + GitCommit + ", built: " + BuildTime + ")"
}
