// Package version carries build-time identifying information for the
// operator binary. Values are populated via -ldflags at build time;
// the zero values below are used for `go run` and tests.
package version

import "fmt"

var (
	// Version is the semantic version of this build, e.g. "v0.4.0".
	Version = "dev"
	// Commit is the git commit SHA this build was produced from.
	Commit = "unknown"
	// BuildDate is the RFC3339 timestamp of the build.
	BuildDate = "unknown"
)

// Info is the structured form of the package-level build variables.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
}

// String renders a one-line human-readable summary, used by the
// `version` subcommand.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
