package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/internal/marker"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/cmake"
	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// LicenseDir receives the license inside the package folder.
const LicenseDir = "licenses"

// Installed packages must contain these folders.
var installedDirs = []string{"include", "lib"}

// SourceProvider puts verified sources into workDir/subfolder.
type SourceProvider interface {
	Source(ctx context.Context, src fetch.Source, workDir, subfolder string, force bool) (string, error)
}

// Layout places the stages on disk. The sources end up in
// SourceDir/sources; the build tree lives in BuildDir; the package is
// installed into PackageDir.
type Layout struct {
	SourceDir  string
	BuildDir   string
	PackageDir string
}

// SourcesPath is the canonical source folder.
func (l Layout) SourcesPath() string {
	return filepath.Join(l.SourceDir, recipe.SourceSubfolder)
}

// Params wires a session.
type Params struct {
	Recipe        recipe.Recipe
	Options       options.FeatureOptions
	Facts         platform.Facts
	Layout        Layout
	Source        fetch.Source
	Sources       SourceProvider
	BuildSystem   cmake.BuildSystem
	Requirements  RequirementChecker
	ForceDownload bool
}

// Session drives one package build. Every stage sees the same option
// snapshot and platform facts.
type Session struct {
	recipe  recipe.Recipe
	opts    options.FeatureOptions
	facts   platform.Facts
	layout  Layout
	source  fetch.Source
	sources SourceProvider
	build   cmake.BuildSystem
	reqs    RequirementChecker
	force   bool

	fingerprint string
	stage       Stage
	logger      hclog.Logger
}

// NewSession creates a session and picks up the stage earlier invocations
// left on disk for the same options and platform facts.
func NewSession(p Params, logger hclog.Logger) (*Session, error) {
	if err := p.Facts.Validate(); err != nil {
		return nil, err
	}
	if p.Sources == nil || p.BuildSystem == nil {
		return nil, errors.New("session needs a source provider and a build system")
	}

	s := &Session{
		recipe:      p.Recipe,
		opts:        p.Options,
		facts:       p.Facts,
		layout:      p.Layout,
		source:      p.Source,
		sources:     p.Sources,
		build:       p.BuildSystem,
		reqs:        p.Requirements,
		force:       p.ForceDownload,
		fingerprint: plan.BuildFingerprint(p.Options, p.Facts).String(),
		logger:      logger.Named("pipeline"),
	}
	s.stage = s.detect()
	s.logger.Debug("🔍 Session stage detected", "stage", s.stage, "options", s.opts.String())
	return s, nil
}

// Stage returns the furthest completed stage.
func (s *Session) Stage() Stage { return s.stage }

// Options returns the option snapshot of the session.
func (s *Session) Options() options.FeatureOptions { return s.opts }

// Facts returns the platform facts of the session.
func (s *Session) Facts() platform.Facts { return s.facts }

// Definitions are the CMake definitions every configure of this session uses.
func (s *Session) Definitions() plan.Definitions {
	defs := plan.DeriveDefinitions(s.opts, s.facts)
	if s.layout.PackageDir != "" {
		defs = defs.With(plan.DefInstallPrefix, s.layout.PackageDir)
	}
	return defs
}

// Description is the package description for this session.
func (s *Session) Description() plan.PackageDescription {
	return plan.DerivePackageDescription(s.recipe, s.opts, s.facts)
}

func (s *Session) detect() Stage {
	if info, err := os.Stat(s.layout.SourcesPath()); err != nil || !info.IsDir() {
		return Unfetched
	}
	name, version := s.recipe.Name, s.recipe.VersionString()

	stage := Fetched
	if marker.IsComplete(s.layout.BuildDir, markConfigure, name, version, s.fingerprint) {
		stage = Configured
	} else {
		return stage
	}
	if marker.IsComplete(s.layout.BuildDir, markBuild, name, version, s.fingerprint) {
		stage = Built
	} else {
		return stage
	}
	if marker.IsComplete(s.layout.PackageDir, markInstall, name, version, s.fingerprint, installedDirs...) {
		stage = Installed
	} else {
		return stage
	}

	desc, err := readDescription(filepath.Join(s.layout.PackageDir, DescriptionFile))
	if err == nil && reflect.DeepEqual(*desc, s.Description()) {
		stage = Described
	}
	return stage
}

func (s *Session) require(op string, need Stage) error {
	if s.stage >= need {
		return nil
	}
	return fmt.Errorf("%w: %s needs the %s stage, session is %s", rerrors.ErrStageOrder, op, need, s.stage)
}

// Source acquires, verifies and extracts the sources. It fails with a
// ConflictError when the canonical source folder already exists.
func (s *Session) Source(ctx context.Context) error {
	path, err := s.sources.Source(ctx, s.source, s.layout.SourceDir, recipe.SourceSubfolder, s.force)
	if err != nil {
		return err
	}
	s.logger.Info("📂 Sources ready", "path", path)
	s.stage = Fetched
	return nil
}

// Configure checks requirements and generates the build tree. Any previous
// build is invalidated.
func (s *Session) Configure(ctx context.Context) error {
	if err := s.require("configure", Fetched); err != nil {
		return err
	}
	if err := s.checkRequirements(); err != nil {
		return err
	}

	marker.Clean(s.layout.BuildDir, markBuild)
	if err := s.runStep(s.layout.BuildDir, markConfigure, func() error {
		return s.build.Configure(ctx, s.Definitions())
	}); err != nil {
		return err
	}
	s.stage = Configured
	return nil
}

// Build configures and compiles.
func (s *Session) Build(ctx context.Context) error {
	if err := s.Configure(ctx); err != nil {
		return err
	}
	if err := s.runStep(s.layout.BuildDir, markBuild, func() error {
		return s.build.Build(ctx)
	}); err != nil {
		return err
	}
	s.stage = Built
	return nil
}

// Install configures again, installs into the package folder and copies
// the license there.
func (s *Session) Install(ctx context.Context) error {
	if err := s.require("install", Built); err != nil {
		return err
	}
	if err := s.checkRequirements(); err != nil {
		return err
	}

	marker.Clean(s.layout.PackageDir, markInstall)
	if err := s.build.Configure(ctx, s.Definitions()); err != nil {
		return err
	}
	if err := s.runStep(s.layout.PackageDir, markInstall, func() error {
		if err := s.build.Install(ctx); err != nil {
			return err
		}
		return s.copyLicense()
	}); err != nil {
		return err
	}
	s.stage = Installed
	return nil
}

// Describe writes the package description next to the installed package.
// The install must have been made with the same options and facts.
func (s *Session) Describe() (plan.PackageDescription, error) {
	if s.stage < Installed {
		m, err := marker.Read(s.layout.PackageDir, markInstall)
		if err == nil && m.Fingerprint != s.fingerprint {
			return plan.PackageDescription{}, fmt.Errorf("%w: installed build %s, describing %s",
				rerrors.ErrDescriptionMismatch, m.Fingerprint, s.fingerprint)
		}
		if err := s.require("describe", Installed); err != nil {
			return plan.PackageDescription{}, err
		}
	}

	desc := s.Description()
	path := filepath.Join(s.layout.PackageDir, DescriptionFile)
	if err := writeDescription(path, desc); err != nil {
		return plan.PackageDescription{}, fmt.Errorf("failed to write package description: %w", err)
	}
	s.logger.Info("📝 Package description written", "path", path, "libs", len(desc.Libs))
	s.stage = Described
	return desc, nil
}

// Run takes the session from its current stage to Described.
func (s *Session) Run(ctx context.Context) (plan.PackageDescription, error) {
	if s.stage < Fetched {
		if err := s.Source(ctx); err != nil {
			return plan.PackageDescription{}, err
		}
	}
	if s.stage < Built {
		if err := s.Build(ctx); err != nil {
			return plan.PackageDescription{}, err
		}
	}
	if s.stage < Installed {
		if err := s.Install(ctx); err != nil {
			return plan.PackageDescription{}, err
		}
	}
	return s.Describe()
}

func (s *Session) checkRequirements() error {
	for _, req := range plan.Requirements(s.opts) {
		if s.reqs == nil {
			return fmt.Errorf("%w: %s (no package store configured)", rerrors.ErrRequirementMissing, req)
		}
		if err := s.reqs.Check(req); err != nil {
			return err
		}
		s.logger.Debug("✅ Requirement available", "requirement", req.String())
	}
	return nil
}

// runStep runs fn and records its outcome as a marker in dir. Errors from
// fn are returned as they are.
func (s *Session) runStep(dir, stage string, fn func() error) error {
	if err := fn(); err != nil {
		if mErr := marker.MarkIncomplete(dir, stage, err.Error()); mErr != nil {
			s.logger.Warn("⚠️ Failed to record stage failure", "stage", stage, "error", mErr)
		}
		return err
	}
	if err := marker.MarkComplete(dir, stage, s.recipe.Name, s.recipe.VersionString(), s.fingerprint); err != nil {
		return fmt.Errorf("failed to record %s stage: %w", stage, err)
	}
	return nil
}

func (s *Session) copyLicense() error {
	src := filepath.Join(s.layout.SourcesPath(), recipe.LicenseFile)
	dstDir := filepath.Join(s.layout.PackageDir, LicenseDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open license: %w", err)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, recipe.LicenseFile)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	s.logger.Debug("📄 License copied", "path", dst)
	return out.Close()
}
