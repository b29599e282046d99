// Package plan derives what to pass to the external build and what to tell
// consumers about the result, purely from feature options and platform facts.
package plan

import (
	"fmt"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// CMake definition keys.
const (
	DefBuildBullet3            = "BUILD_BULLET3"
	DefWindowsExportAllSymbols = "CMAKE_WINDOWS_EXPORT_ALL_SYMBOLS"
	DefInstallLibs             = "INSTALL_LIBS"
	DefBuildSharedLibs         = "BUILD_SHARED_LIBS"
	DefPositionIndependentCode = "CMAKE_POSITION_INDEPENDENT_CODE"
	DefUseGraphicalBenchmark   = "USE_GRAPHICAL_BENCHMARK"
	DefUseDoublePrecision      = "USE_DOUBLE_PRECISION"
	DefBullet2ThreadLocks      = "BULLET2_USE_THREAD_LOCKS"
	DefSoftMultiBodyDynamics   = "USE_SOFT_BODY_MULTI_BODY_DYNAMICS_WORLD"
	DefBuildPybullet           = "BUILD_PYBULLET"
	DefBuildPybulletNumpy      = "BUILD_PYBULLET_NUMPY"
	DefBuildEnet               = "BUILD_ENET"
	DefBuildClsocket           = "BUILD_CLSOCKET"
	DefBuildCPUDemos           = "BUILD_CPU_DEMOS"
	DefBuildOpenGL3Demos       = "BUILD_OPENGL3_DEMOS"
	DefBuildBullet2Demos       = "BUILD_BULLET2_DEMOS"
	DefBuildExtras             = "BUILD_EXTRAS"
	DefBuildUnitTests          = "BUILD_UNIT_TESTS"
	DefMSVCRuntimeLibraryDLL   = "USE_MSVC_RUNTIME_LIBRARY_DLL"
	DefBuildType               = "CMAKE_BUILD_TYPE"
	DefInstallPrefix           = "CMAKE_INSTALL_PREFIX"
)

// Definition is one -D key/value pair.
type Definition struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Definitions is an ordered set of CMake definitions. Keys are unique.
type Definitions []Definition

// Lookup returns the value for key.
func (d Definitions) Lookup(key string) (string, bool) {
	for _, def := range d {
		if def.Key == key {
			return def.Value, true
		}
	}
	return "", false
}

// Keys returns the keys in order.
func (d Definitions) Keys() []string {
	keys := make([]string, len(d))
	for i, def := range d {
		keys[i] = def.Key
	}
	return keys
}

// Args renders -DKEY=VALUE arguments.
func (d Definitions) Args() []string {
	args := make([]string, len(d))
	for i, def := range d {
		args[i] = fmt.Sprintf("-D%s=%s", def.Key, def.Value)
	}
	return args
}

// With returns a copy with key set, replacing an existing entry in place.
func (d Definitions) With(key, value string) Definitions {
	out := make(Definitions, 0, len(d)+1)
	replaced := false
	for _, def := range d {
		if def.Key == key {
			def.Value = value
			replaced = true
		}
		out = append(out, def)
	}
	if !replaced {
		out = append(out, Definition{Key: key, Value: value})
	}
	return out
}

func cmakeBool(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

type builder struct {
	defs Definitions
}

func (b *builder) set(key, value string) { b.defs = append(b.defs, Definition{Key: key, Value: value}) }
func (b *builder) flag(key string, on bool) { b.set(key, cmakeBool(on)) }

// DeriveDefinitions maps options and facts onto CMake definitions. Every
// option has a definition even when off; BUILD_PYBULLET_NUMPY is never ON
// unless BUILD_PYBULLET is. USE_MSVC_RUNTIME_LIBRARY_DLL exists only for
// Visual Studio, CMAKE_WINDOWS_EXPORT_ALL_SYMBOLS only on Windows hosts.
func DeriveDefinitions(opts options.FeatureOptions, facts platform.Facts) Definitions {
	b := &builder{}

	b.flag(DefBuildBullet3, opts.Bool(recipe.OptBullet3))
	if facts.IsHostWindows() {
		b.flag(DefWindowsExportAllSymbols, true)
	}
	b.flag(DefInstallLibs, true)
	b.flag(DefBuildSharedLibs, opts.Bool(recipe.OptShared))
	// fPIC is absent for shared and Windows builds.
	b.flag(DefPositionIndependentCode, opts.Has(recipe.OptFPIC) && opts.Bool(recipe.OptFPIC))
	b.flag(DefUseGraphicalBenchmark, opts.Bool(recipe.OptGraphicalBenchmark))
	b.flag(DefUseDoublePrecision, opts.Bool(recipe.OptDoublePrecision))
	b.flag(DefBullet2ThreadLocks, opts.Bool(recipe.OptBt2ThreadLocks))
	b.flag(DefSoftMultiBodyDynamics, opts.Bool(recipe.OptSoftMultiBodyDynamics))

	pybullet := opts.Bool(recipe.OptPybullet)
	b.flag(DefBuildPybullet, pybullet)
	b.flag(DefBuildPybulletNumpy, pybullet && opts.Bool(recipe.OptPybulletNumpy))

	network := opts.Bool(recipe.OptNetworkSupport)
	b.flag(DefBuildEnet, network)
	b.flag(DefBuildClsocket, network)

	b.flag(DefBuildCPUDemos, false)
	b.flag(DefBuildOpenGL3Demos, false)
	b.flag(DefBuildBullet2Demos, false)
	b.flag(DefBuildExtras, false)
	b.flag(DefBuildUnitTests, false)

	if facts.IsVisualStudio() {
		b.flag(DefMSVCRuntimeLibraryDLL, facts.RuntimeLinkage() == platform.DynamicRuntime)
	}
	if facts.BuildType != "" {
		b.set(DefBuildType, facts.BuildType)
	}

	return b.defs
}

// OptionDefinitions maps each option onto the definition key carrying it.
var OptionDefinitions = map[string][]string{
	recipe.OptShared:                {DefBuildSharedLibs},
	recipe.OptFPIC:                  {DefPositionIndependentCode},
	recipe.OptBullet3:               {DefBuildBullet3},
	recipe.OptGraphicalBenchmark:    {DefUseGraphicalBenchmark},
	recipe.OptDoublePrecision:       {DefUseDoublePrecision},
	recipe.OptBt2ThreadLocks:        {DefBullet2ThreadLocks},
	recipe.OptSoftMultiBodyDynamics: {DefSoftMultiBodyDynamics},
	recipe.OptPybullet:              {DefBuildPybullet},
	recipe.OptPybulletNumpy:         {DefBuildPybulletNumpy},
	recipe.OptNetworkSupport:        {DefBuildEnet, DefBuildClsocket},
}
