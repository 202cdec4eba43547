// Package buildinfo exposes the version metadata stamped into the fleetd
// binary with -ldflags. Binaries built with plain "go install" fall back
// to the module version and VCS stamp recorded by the toolchain.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set via -ldflags "-X github.com/fleetchat/fleetd/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Details is the build and runtime metadata reported by "fleetd
// version" and the relay info topic.
type Details struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime"`
}

var (
	stampOnce sync.Once
	stamped   Details
)

// stamp merges the ldflags values with what debug.ReadBuildInfo
// recorded. ldflags win when set.
func stamp() Details {
	stampOnce.Do(func() {
		stamped = Details{
			Version:   Version,
			GitCommit: GitCommit,
			GitBranch: GitBranch,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if stamped.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			stamped.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if stamped.GitCommit == "unknown" {
					stamped.GitCommit = shortRevision(s.Value)
				}
			case "vcs.time":
				if stamped.BuildTime == "unknown" {
					stamped.BuildTime = s.Value
				}
			case "vcs.modified":
				stamped.Modified = s.Value == "true"
			}
		}
	})
	return stamped
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Current returns the build metadata with the uptime filled in.
func Current() Details {
	d := stamp()
	d.Uptime = Uptime().String()
	return d
}

// Uptime is the time since the process started, truncated to seconds.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// UserAgent is the User-Agent sent on every outbound provider request.
func UserAgent() string {
	return fmt.Sprintf("fleetd/%s (%s/%s)", stamp().Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a one-line summary for startup logs.
func String() string {
	d := stamp()
	s := fmt.Sprintf("fleetd %s (%s@%s) built %s", d.Version, d.GitCommit, d.GitBranch, d.BuildTime)
	if d.Modified {
		s += " +dirty"
	}
	return s
}
