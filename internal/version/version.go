/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/onair/internal/version.Version=X.Y.Z
var Version = "0.1.0-dev"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns build information, reading the VCS revision when the binary
// was built from a checkout.
func Get() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	if i.Revision == "" {
		return fmt.Sprintf("onair %s (%s)", i.Version, i.GoVersion)
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return fmt.Sprintf("onair %s %s (%s)", i.Version, rev, i.GoVersion)
}
