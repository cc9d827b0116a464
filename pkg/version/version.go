// Package version derives the build revision shown in logs and protocol
// handshakes.
package version

import "runtime/debug"

// AppName prefixes every version string.
const AppName = "quack"

// revision can be stamped with -ldflags for builds without VCS metadata.
var revision string

// Commit is the short VCS revision, or "dev" when nothing is known.
var Commit = resolve()

func resolve() string {
	rev := revision
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
					break
				}
			}
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev
}

// Full returns "quack/<commit>" for log lines and handshake banners.
func Full() string {
	return AppName + "/" + Commit
}
