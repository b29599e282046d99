// Package recipe defines the bullet3 package recipe: its metadata, its
// feature options and where its sources come from.
package recipe

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// Option names.
const (
	OptShared                = "shared"
	OptFPIC                  = "fPIC"
	OptBullet3               = "bullet3"
	OptGraphicalBenchmark    = "graphical_benchmark"
	OptDoublePrecision       = "double_precision"
	OptBt2ThreadLocks        = "bt2_thread_locks"
	OptSoftMultiBodyDynamics = "btSoftMultiBodyDynamicsWorld"
	OptPybullet              = "pybullet"
	OptPybulletNumpy         = "pybullet_numpy"
	OptNetworkSupport        = "network_support"
)

// SourceSubfolder is the canonical directory the sources are moved to.
const SourceSubfolder = "sources"

// LicenseFile is copied from the sources into the package.
const LicenseFile = "LICENSE.txt"

// Recipe is constructed once and shared read-only by every stage.
type Recipe struct {
	Name        string
	Version     *semver.Version
	Description string
	Homepage    string
	License     string
	URL         string
	Author      string
	Topics      []string

	Upstream  fetch.Upstream
	Checksums map[string]string

	Options options.Declarations
	Rules   options.Rules
}

// Bullet3 returns the bullet3 2.88 recipe.
func Bullet3() Recipe {
	return Recipe{
		Name:        "bullet3",
		Version:     semver.MustParse("2.88"),
		Description: "Bullet Physics SDK: real-time collision detection and multi-physics simulation for VR, games, visual effects, robotics, machine learning etc.",
		Homepage:    "https://github.com/bulletphysics/bullet3",
		License:     "ZLIB",
		URL:         "https://github.com/bincrafters/conan-bullet3",
		Author:      "Bincrafters <bincrafters@gmail.com>",
		Topics:      []string{"bullet", "physics", "simulation", "robotics", "kinematics", "engine"},
		Upstream: fetch.Upstream{
			Host:  "https://github.com",
			Owner: "bulletphysics",
			Repo:  "bullet3",
		},
		Checksums: map[string]string{
			"2.88": "21c135775527754fc2929db1db5144e92ad0218ae72840a9f162acb467a7bbf9",
		},
		Options: options.Declarations{
			options.Bool(OptShared, false, "build shared libraries"),
			options.Bool(OptFPIC, true, "position independent code for static builds"),
			options.Bool(OptBullet3, false, "build the experimental Bullet3 libraries"),
			options.Bool(OptGraphicalBenchmark, false, "use the graphical benchmark"),
			options.Bool(OptDoublePrecision, false, "use double precision math"),
			options.Bool(OptBt2ThreadLocks, false, "use thread locks in Bullet2"),
			options.Bool(OptSoftMultiBodyDynamics, false, "use btSoftMultiBodyDynamicsWorld"),
			options.Bool(OptPybullet, false, "build pybullet"),
			options.Bool(OptPybulletNumpy, false, "build pybullet with numpy acceleration"),
			options.Bool(OptNetworkSupport, false, "build enet and clsocket"),
		},
		Rules: options.Rules{
			Removals: []options.Removal{{
				Option: OptFPIC,
				When: func(values options.Values, facts platform.Facts) bool {
					return values.Bool(OptShared) || facts.IsWindows()
				},
			}},
			Dependencies: []options.Dependency{{
				Option:   OptPybulletNumpy,
				Requires: OptPybullet,
			}},
		},
	}
}

// VersionString is the version as upstream tags it.
func (r Recipe) VersionString() string {
	return r.Version.Original()
}

// Reference is the name/version identifier of the package.
func (r Recipe) Reference() string {
	return fmt.Sprintf("%s/%s", r.Name, r.VersionString())
}

// NewOptions returns an option set holding the declared defaults.
func (r Recipe) NewOptions() *options.Set {
	return options.NewSet(r.Options)
}

// Resolver returns a fetch resolver caching archives below cacheRoot.
func (r Recipe) Resolver(cacheRoot string) (*fetch.Resolver, error) {
	return fetch.NewResolver(r.Name, r.Upstream, r.Checksums, cacheRoot)
}
