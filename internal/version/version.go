// Package version reports build information for the fruitflow binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	unknownValue     = "unknown"
	commitHashLength = 7
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	BuildDate = unknownValue
	GitCommit = unknownValue
	GoVersion = runtime.Version()
)

// BuildInfo is what `fruitflow version` prints
type BuildInfo struct {
	Version   string            `json:"version"`
	BuildDate string            `json:"build_date"`
	GitCommit string            `json:"git_commit"`
	GoVersion string            `json:"go_version"`
	Dirty     bool              `json:"dirty"`
	Release   bool              `json:"release"`
	Module    string            `json:"module,omitempty"`
	Deps      map[string]string `json:"deps,omitempty"`
}

// Info collects the ldflags values and the embedded module information
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),
		Release:   IsRelease(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Module = bi.Main.Path
		if len(bi.Deps) > 0 {
			info.Deps = make(map[string]string, len(bi.Deps))
			for _, dep := range bi.Deps {
				info.Deps[dep.Path] = dep.Version
			}
		}
	}
	return info
}

// String renders the build info for humans
func (b BuildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fruitflow %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")

	if b.BuildDate != unknownValue {
		fmt.Fprintf(&sb, "Build Date: %s\n", b.BuildDate)
	}
	if b.GitCommit != unknownValue {
		commit := b.GitCommit
		if len(commit) > commitHashLength {
			commit = commit[:commitHashLength]
		}
		fmt.Fprintf(&sb, "Git Commit: %s\n", commit)
	}
	fmt.Fprintf(&sb, "Go Version: %s\n", b.GoVersion)
	return sb.String()
}

// IsRelease reports whether this is a tagged release build
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-")
}
