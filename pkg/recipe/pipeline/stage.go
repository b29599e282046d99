// Package pipeline runs a package build through its stages: fetch the
// sources, configure, build, install and describe the result.
package pipeline

import "fmt"

// Stage is the furthest point a package build has reached.
type Stage int

const (
	Unfetched Stage = iota
	Fetched
	Configured
	Built
	Installed
	Described
)

var stageNames = [...]string{
	Unfetched:  "unfetched",
	Fetched:    "fetched",
	Configured: "configured",
	Built:      "built",
	Installed:  "installed",
	Described:  "described",
}

func (s Stage) String() string {
	if s < Unfetched || s > Described {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Marker names of the stages that leave one on disk.
const (
	markConfigure = "configure"
	markBuild     = "build"
	markInstall   = "install"
)
