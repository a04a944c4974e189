// Package version reports the clinicbot build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at link time, e.g.
//
//	-ldflags "-X github.com/soyeahso/clinicbot/internal/version.Version=1.0.0"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	Target  string `json:"target"`
}

// Current fills in Commit and Date from the embedded VCS stamp when they
// were not set at link time.
func Current() Build {
	b := Build{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Go:      runtime.Version(),
		Target:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && b.Commit == "unknown":
				b.Commit = s.Value
			case s.Key == "vcs.time" && b.Date == "unknown":
				b.Date = s.Value
			}
		}
	}
	if len(b.Commit) > 7 {
		b.Commit = b.Commit[:7]
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("clinicbot %s (commit: %s, built: %s, %s, %s)", b.Version, b.Commit, b.Date, b.Go, b.Target)
}

// UserAgent identifies clinicbot to LLM providers and IRC servers.
func UserAgent() string {
	return "clinicbot/" + Version
}
