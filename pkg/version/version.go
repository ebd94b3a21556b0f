// Package version carries build information injected at link time:
// go build -ldflags "-X spectra/pkg/version.Version=v1.2.3".
package version

import "fmt"

//nolint:gochecknoglobals // ldflags targets must be package-level vars.
var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the version block printed by the CLI.
func String() string {
	return fmt.Sprintf("spectra %s\n  commit: %s\n  built:  %s", Version, Commit, Date)
}
