// Package version holds build-time version information.
// Values are injected at build time via -ldflags.
package version

import "runtime"

var (
	// GitRelease is the release tag (e.g. v0.3.1), set via ldflags.
	GitRelease = "dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// GitCommitDate is the commit date.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain version used for the build.
	GoInfo = runtime.Version()
)
