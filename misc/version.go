// Package misc keeps build time information.
package misc

import (
	"runtime/debug"
)

// set with -ldflags "-X cssdata/misc.version=... -X cssdata/misc.gitHash=..."
var (
	appName = "cssdata"
	version = "dev"
	gitHash = ""
)

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit hash program was built from. When not set at
// link time VCS information recorded by the toolchain is used.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
