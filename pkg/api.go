package pkg

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/cmake"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/config"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/pipeline"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// Request is everything one invocation of the recipe needs.
type Request struct {
	Config  *config.Config
	Profile *config.Profile
	// Overrides are name=value option assignments applied after the
	// profile's options.
	Overrides []string
	// Version selects the source snapshot; empty means the recipe version.
	Version string
	Layout  pipeline.Layout
}

// Plan is what a session would do, computed without touching the disk.
type Plan struct {
	Reference        string                  `json:"reference"`
	Options          []string                `json:"options"`
	Settings         platform.Facts          `json:"settings"`
	Source           string                  `json:"source_url"`
	Definitions      plan.Definitions        `json:"definitions"`
	ConfigureCommand string                  `json:"configure_command"`
	Description      plan.PackageDescription `json:"package"`
}

// ResolveOptions applies profile options and overrides to the recipe
// defaults and resolves them against the profile settings.
func ResolveOptions(r recipe.Recipe, req Request, logger hclog.Logger) (options.FeatureOptions, error) {
	set := r.NewOptions()
	if err := set.Merge(req.Profile.Options); err != nil {
		return options.FeatureOptions{}, fmt.Errorf("profile options: %w", err)
	}
	if err := set.ApplyAll(req.Overrides); err != nil {
		return options.FeatureOptions{}, err
	}
	return set.Resolve(req.Profile.Settings, r.Rules, req.Config.Validation, logger)
}

// NewRunner configures the cmake runner for the request.
func NewRunner(req Request, logger hclog.Logger) *cmake.Runner {
	runner := cmake.NewRunner(req.Layout.SourcesPath(), req.Layout.BuildDir, req.Profile.Settings.BuildType, logger)
	runner.Executable = req.Config.CMake
	runner.Generator = req.Config.CMakeGenerator
	runner.ExtraArgs = req.Config.CMakeArgs
	runner.Jobs = req.Config.CMakeJobs
	runner.InstallPrefix = req.Layout.PackageDir
	return runner
}

func resolveSource(r recipe.Recipe, req Request) (fetch.Source, error) {
	resolver, err := r.Resolver(req.Config.CacheDir)
	if err != nil {
		return fetch.Source{}, err
	}
	version := req.Version
	if version == "" {
		version = r.VersionString()
	}
	return resolver.Resolve(version)
}

// NewSession wires a pipeline session for the request.
func NewSession(req Request, logger hclog.Logger) (*pipeline.Session, error) {
	r := recipe.Bullet3()
	opts, err := ResolveOptions(r, req, logger)
	if err != nil {
		return nil, err
	}
	src, err := resolveSource(r, req)
	if err != nil {
		return nil, err
	}

	client := fetch.NewClient(req.Config.ClientOptions(), logger.Named("http"))
	fetcher := fetch.NewFetcher(client, req.Config.LockTimeout, logger.Named("fetch"))

	logger.Debug("🧭 Session configured",
		"reference", r.Reference(),
		"settings", req.Profile.Settings.String(),
		"options", opts.String(),
		"cache", req.Config.CacheDir)

	return pipeline.NewSession(pipeline.Params{
		Recipe:        r,
		Options:       opts,
		Facts:         req.Profile.Settings,
		Layout:        req.Layout,
		Source:        src,
		Sources:       fetcher,
		BuildSystem:   NewRunner(req, logger),
		Requirements:  pipeline.PackageStore{Root: req.Config.PackagesDir},
		ForceDownload: req.Config.ForceDownload,
	}, logger)
}

// PlanBuild derives the definitions and package description for the
// request without fetching or building anything.
func PlanBuild(req Request, logger hclog.Logger) (*Plan, error) {
	r := recipe.Bullet3()
	if err := req.Profile.Settings.Validate(); err != nil {
		return nil, err
	}
	opts, err := ResolveOptions(r, req, logger)
	if err != nil {
		return nil, err
	}
	src, err := resolveSource(r, req)
	if err != nil {
		return nil, err
	}

	defs := plan.DeriveDefinitions(opts, req.Profile.Settings).With(plan.DefInstallPrefix, req.Layout.PackageDir)
	runner := NewRunner(req, logger)

	return &Plan{
		Reference:        r.Reference(),
		Options:          opts.Pairs(),
		Settings:         req.Profile.Settings,
		Source:           src.URL,
		Definitions:      defs,
		ConfigureCommand: runner.CommandLine(runner.ConfigureArgs(defs)),
		Description:      plan.DerivePackageDescription(r, opts, req.Profile.Settings),
	}, nil
}

// DefaultLayout places source, build and package folders below dir.
func DefaultLayout(dir string) (pipeline.Layout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return pipeline.Layout{}, err
	}
	return pipeline.Layout{
		SourceDir:  filepath.Join(abs, "source"),
		BuildDir:   filepath.Join(abs, "build"),
		PackageDir: filepath.Join(abs, "package"),
	}, nil
}
