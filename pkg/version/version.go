// Package version provides build-time version information for Aperture.
package version

import "fmt"

// Build information. Populated at build time via ldflags.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildTime = "unknown"
)

// Info represents version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build's version information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("aperture v%s (commit: %s, built: %s)", i.Version, i.Commit, i.BuildTime)
}
