// Package version reports build metadata injected via -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build metadata for `murmur version`.
func String() string {
	commit, date := Commit, Date
	if commit == "none" {
		commit, date = fromBuildInfo(commit, date)
	}
	return "murmur " + Version + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ")"
}

// fromBuildInfo fills unset fields from the VCS stamp of `go build`.
func fromBuildInfo(commit, date string) (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, date
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if len(setting.Value) > 12 {
				commit = setting.Value[:12]
			} else if setting.Value != "" {
				commit = setting.Value
			}
		case "vcs.time":
			if date == "unknown" && setting.Value != "" {
				date = setting.Value
			}
		}
	}
	return commit, date
}
