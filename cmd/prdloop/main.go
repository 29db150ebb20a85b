// Package main is the prdloop entry point.
package main

import (
	"os"
	"runtime/debug"

	"github.com/alexander-akhmetov/prdloop/internal/cli"
)

// Set via ldflags by release builds.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			version = moduleVersion(info.Main.Version)
			commit, date = versionFromSettings(info.Settings)
		}
	}
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// moduleVersion returns the version go install recorded, or dev for local
// builds.
func moduleVersion(v string) string {
	if v == "" || v == "(devel)" {
		return "dev"
	}
	return v
}

func versionFromSettings(settings []debug.BuildSetting) (commit, date string) {
	var revision string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	commit = "unknown"
	if len(revision) >= 7 {
		commit = revision[:7]
		if dirty {
			commit += "-dirty"
		}
	}
	if date == "" {
		date = "unknown"
	}
	return commit, date
}
