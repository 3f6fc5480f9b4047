// Package version derives the compatibility key that routes tasks to workers
// built from the same release line, and gates dispatch on the worker roster.
package version

import (
	"regexp"
	"runtime/debug"
	"strings"
)

// Set at build time via -ldflags "-X proxyfarm/internal/version.Version=... -X ...Commit=...".
var (
	Version = "dev"
	Commit  = ""
)

var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.\d+)?(?:[-+].*)?$`)

// Key returns MAJOR.MINOR for semantic versions, otherwise the short commit,
// otherwise "dev".
func Key(version, commit string) string {
	version = strings.TrimSpace(version)
	if m := semverPattern.FindStringSubmatch(version); m != nil {
		return m[1] + "." + m[2]
	}
	commit = strings.TrimSpace(commit)
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		return commit
	}
	return "dev"
}

// Current returns the key of the running build, consulting embedded build
// info when the ldflags values were not set.
func Current() string {
	version, commit := Version, Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		if (version == "" || version == "dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		if commit == "" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
				}
			}
		}
	}
	return Key(version, commit)
}

// String returns a human readable version line.
func String() string {
	out := Version
	if Commit != "" {
		short := Commit
		if len(short) > 7 {
			short = short[:7]
		}
		out += " (" + short + ")"
	}
	return out + " key=" + Current()
}
