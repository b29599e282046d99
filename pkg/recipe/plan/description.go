package plan

import (
	"encoding/json"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// DebugSuffix is appended to library names of Windows Debug builds.
const DebugSuffix = "_Debug"

// Bullet3Libs are linked before the base libraries when the bullet3 option
// is on. Order matters for static linking.
var Bullet3Libs = []string{
	"Bullet2FileLoader",
	"Bullet3Collision",
	"Bullet3Dynamics",
	"Bullet3Geometry",
	"Bullet3OpenCL_clew",
}

// BaseLibs are always installed, in link order.
var BaseLibs = []string{
	"BulletDynamics",
	"BulletCollision",
	"LinearMath",
	"BulletSoftBody",
	"Bullet3Common",
	"BulletInverseDynamics",
}

// PackageDescription tells consumers how to use the installed package.
// Paths are relative to the package folder. Fingerprint identifies the
// options and settings the package was built with.
type PackageDescription struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Libs         []string       `json:"libs"`
	IncludeDirs  []string       `json:"include_dirs"`
	BuildDirs    []string       `json:"build_dirs"`
	Requirements []Requirement  `json:"requirements,omitempty"`
	Options      []string       `json:"options"`
	Platform     platform.Facts `json:"settings"`
	Fingerprint  string         `json:"fingerprint"`
}

// DerivePackageDescription computes the description for opts and facts.
func DerivePackageDescription(r recipe.Recipe, opts options.FeatureOptions, facts platform.Facts) PackageDescription {
	return PackageDescription{
		Name:         r.Name,
		Version:      r.VersionString(),
		Libs:         Libs(opts, facts),
		IncludeDirs:  []string{"include", "include/bullet"},
		BuildDirs:    []string{"lib/cmake/bullet"},
		Requirements: Requirements(opts),
		Options:      opts.Pairs(),
		Platform:     facts,
		Fingerprint:  BuildFingerprint(opts, facts).String(),
	}
}

// BuildFingerprint identifies the artifacts a build of opts under facts
// produces. Two builds share it only when both the options and the platform
// settings are equal.
func BuildFingerprint(opts options.FeatureOptions, facts platform.Facts) digest.Digest {
	// Facts holds only strings, Marshal cannot fail.
	settings, _ := json.Marshal(facts)
	return digest.FromString(strings.Join(opts.Pairs(), "\n") + "\n" + string(settings))
}

// Libs returns library names in link order. The debug suffix applies only
// when the target is Windows and the build type is Debug.
func Libs(opts options.FeatureOptions, facts platform.Facts) []string {
	libs := make([]string, 0, len(Bullet3Libs)+len(BaseLibs))
	if opts.Bool(recipe.OptBullet3) {
		libs = append(libs, Bullet3Libs...)
	}
	libs = append(libs, BaseLibs...)

	if facts.IsWindows() && facts.IsDebug() {
		for i, lib := range libs {
			libs[i] = lib + DebugSuffix
		}
	}
	return libs
}
