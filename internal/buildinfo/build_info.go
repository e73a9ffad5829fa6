package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const unknown = "n/a"

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// Complete fills the fields that were not set at link time from the VCS stamp of the binary, if
// any.
func (i BuildInfo) Complete() BuildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i.withDefaults()
	}
	if i.Version == "" || i.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			i.Version = v
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" || i.CommitHash == unknown {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" || i.BuildDate == "<unknown>" {
				i.BuildDate = s.Value
			}
		}
	}
	return i.withDefaults()
}

func (i BuildInfo) withDefaults() BuildInfo {
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.CommitHash == "" {
		i.CommitHash = unknown
	}
	if i.BuildDate == "" {
		i.BuildDate = "<unknown>"
	}
	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
