// Package matrix generates the CI build matrix of the recipe: every
// combination of platform settings and linkage that should be built.
package matrix

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/config"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// Axes are the dimensions of the matrix.
type Axes struct {
	OS         string
	Archs      []string
	Compilers  []platform.Compiler
	BuildTypes []string
	Shared     []bool
}

// DefaultAxes returns the usual axes for CI workers running osName.
func DefaultAxes(osName string) Axes {
	axes := Axes{
		OS:         osName,
		Archs:      []string{"x86_64"},
		BuildTypes: []string{platform.Release, platform.Debug},
		Shared:     []bool{false, true},
	}
	switch osName {
	case platform.Windows:
		axes.Compilers = []platform.Compiler{
			{Name: platform.VisualStudio, Version: "15"},
			{Name: platform.VisualStudio, Version: "16"},
		}
	case platform.Macos:
		axes.Compilers = []platform.Compiler{
			{Name: "apple-clang", Version: "10.0"},
			{Name: "apple-clang", Version: "11.0"},
		}
	default:
		axes.Compilers = []platform.Compiler{
			{Name: "gcc", Version: "7"},
			{Name: "gcc", Version: "8"},
			{Name: "gcc", Version: "9"},
			{Name: "clang", Version: "9"},
		}
	}
	return axes
}

// Build is one matrix entry.
type Build struct {
	Settings platform.Facts
	Options  map[string]string
}

// Shared reports whether the entry builds shared libraries.
func (b Build) Shared() bool {
	return b.Options[recipe.OptShared] == options.FormatBool(true)
}

// Name identifies the entry, e.g. "Linux-x86_64-gcc9-Release-static".
func (b Build) Name() string {
	s := b.Settings
	compiler := strings.ReplaceAll(s.Compiler.Name, " ", "") + s.Compiler.Version
	if s.Compiler.Runtime != "" {
		compiler += "-" + s.Compiler.Runtime
	}
	linkage := "static"
	if b.Shared() {
		linkage = "shared"
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", s.OS, s.Arch, compiler, s.BuildType, linkage)
}

// Profile converts the entry into a build profile.
func (b Build) Profile() *config.Profile {
	opts := make(map[string]string, len(b.Options))
	for k, v := range b.Options {
		opts[k] = v
	}
	return &config.Profile{Options: opts, Settings: b.Settings}
}

// Generate expands axes into builds in a stable order. Visual Studio
// compilers without a runtime are expanded into static and dynamic
// runtimes matching the build type.
func Generate(axes Axes) []Build {
	var builds []Build
	for _, arch := range axes.Archs {
		for _, compiler := range axes.Compilers {
			for _, buildType := range axes.BuildTypes {
				for _, c := range runtimes(compiler, buildType) {
					for _, shared := range axes.Shared {
						builds = append(builds, Build{
							Settings: platform.Facts{
								OS:        axes.OS,
								Arch:      arch,
								Compiler:  c,
								BuildType: buildType,
								HostOS:    axes.OS,
							},
							Options: map[string]string{recipe.OptShared: options.FormatBool(shared)},
						})
					}
				}
			}
		}
	}
	return builds
}

func runtimes(c platform.Compiler, buildType string) []platform.Compiler {
	if c.Name != platform.VisualStudio || c.Runtime != "" {
		return []platform.Compiler{c}
	}
	suffix := ""
	if buildType == platform.Debug {
		suffix = "d"
	}
	static, dynamic := c, c
	static.Runtime = "MT" + suffix
	dynamic.Runtime = "MD" + suffix
	return []platform.Compiler{static, dynamic}
}

// Filter drops shared Visual Studio builds.
func Filter(builds []Build, logger hclog.Logger) []Build {
	logger.Info("🧹 Filtering shared Visual Studio builds")

	kept := make([]Build, 0, len(builds))
	for _, b := range builds {
		if b.Settings.IsVisualStudio() && b.Shared() {
			continue
		}
		kept = append(kept, b)
	}

	logger.Info(fmt.Sprintf("🧹 Removed %d builds", len(builds)-len(kept)), "kept", len(kept))
	return kept
}
