package version

import "fmt"

var (
	// Version is the semantic version of the dm CLI, set at build time.
	Version = "0.1.0"

	// GitCommit is the commit the binary was built from, set at build time.
	GitCommit = ""
)

// FullVersion returns the version and, when known, the commit.
func FullVersion() string {
	if GitCommit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
