// Package version holds build metadata, set with -ldflags -X at link time.
package version

import "fmt"

var (
	// Version is the release version of simworld
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for logs and -version output.
func String() string {
	return fmt.Sprintf("simworld %s (%s, built %s)", Version, GitSHA, BuildTime)
}
