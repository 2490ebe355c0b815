// Package version holds build information set through -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with
//
//	-ldflags "-X github.com/NERVsystems/osmbounds/pkg/version.BuildVersion=v1.2.3"
var (
	BuildVersion = "dev"
	BuildCommit  = ""
	BuildDate    = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if BuildVersion == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		BuildVersion = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if BuildCommit == "" {
				BuildCommit = s.Value
			}
		case "vcs.time":
			if BuildDate == "" {
				BuildDate = s.Value
			}
		}
	}
}

// Info returns the build information as a flat map
func Info() map[string]string {
	m := map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
	}
	if BuildCommit != "" {
		m["commit"] = BuildCommit
	}
	if BuildDate != "" {
		m["build_date"] = BuildDate
	}
	return m
}

// String returns a one-line version description
func String() string {
	s := "osmbounds " + BuildVersion
	if BuildCommit != "" {
		commit := BuildCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		s += fmt.Sprintf(" (%s)", commit)
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s + " " + runtime.Version()
}
