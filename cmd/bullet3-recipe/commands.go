package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/bullet3/pkg"
	"github.com/provide-io/flavor/go/bullet3/pkg/logging"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/config"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/matrix"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/pipeline"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// setup loads configuration, the profile and the logger shared by every
// subcommand.
func setup() (pkg.Request, hclog.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return pkg.Request{}, nil, err
	}

	level, source := logging.GetLogLevel(logLevel)
	logger := logging.NewLogger("bullet3-recipe", level, logging.OpenOutput())
	logger.Debug("🔧 Logger configured", "level", level, "source", source)

	if forceFetch {
		cfg.ForceDownload = true
	}
	if validation != "" {
		if cfg.Validation, err = options.ParseValidationLevel(validation); err != nil {
			return pkg.Request{}, nil, err
		}
	}

	profile := config.DefaultProfile()
	if profilePath != "" {
		if profile, err = config.LoadProfile(profilePath); err != nil {
			return pkg.Request{}, nil, err
		}
		logger.Debug("📋 Profile loaded", "path", profilePath)
	}
	applySettings(&profile.Settings)

	layout, err := resolveLayout()
	if err != nil {
		return pkg.Request{}, nil, err
	}

	return pkg.Request{
		Config:    cfg,
		Profile:   profile,
		Overrides: optionArgs,
		Version:   pkgVersion,
		Layout:    layout,
	}, logger, nil
}

func applySettings(facts *platform.Facts) {
	if settings.os != "" && settings.os != facts.OS {
		facts.OS = settings.os
		facts.Compiler = platform.DefaultCompiler(settings.os)
	}
	if settings.arch != "" {
		facts.Arch = settings.arch
	}
	if settings.compiler != "" {
		facts.Compiler = platform.Compiler{Name: settings.compiler}
	}
	if settings.compilerVersion != "" {
		facts.Compiler.Version = settings.compilerVersion
	}
	if settings.runtime != "" {
		facts.Compiler.Runtime = settings.runtime
	}
	if settings.buildType != "" {
		facts.BuildType = settings.buildType
	}
}

func resolveLayout() (pipeline.Layout, error) {
	layout, err := pkg.DefaultLayout(workDir)
	if err != nil {
		return layout, err
	}
	for _, o := range []struct {
		flag string
		dest *string
	}{
		{sourceDir, &layout.SourceDir},
		{buildDir, &layout.BuildDir},
		{packageDir, &layout.PackageDir},
	} {
		if o.flag == "" {
			continue
		}
		abs, err := filepath.Abs(o.flag)
		if err != nil {
			return layout, err
		}
		*o.dest = abs
	}
	return layout, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stageCommand builds a subcommand running one session step.
func stageCommand(use, short string, step func(context.Context, *pipeline.Session) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, logger, err := setup()
			if err != nil {
				return err
			}
			session, err := pkg.NewSession(req, logger)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := step(ctx, session); err != nil {
				return err
			}
			logger.Info("✅ Done", "stage", session.Stage())
			return nil
		},
	}
}

func newSourceCmd() *cobra.Command {
	return stageCommand("source", "Download, verify and extract the sources", func(ctx context.Context, s *pipeline.Session) error {
		return s.Source(ctx)
	})
}

func newConfigureCmd() *cobra.Command {
	return stageCommand("configure", "Generate the build tree", func(ctx context.Context, s *pipeline.Session) error {
		return s.Configure(ctx)
	})
}

func newBuildCmd() *cobra.Command {
	return stageCommand("build", "Configure and compile", func(ctx context.Context, s *pipeline.Session) error {
		return s.Build(ctx)
	})
}

func newInstallCmd() *cobra.Command {
	return stageCommand("install", "Install the build into the package folder", func(ctx context.Context, s *pipeline.Session) error {
		return s.Install(ctx)
	})
}

func describeCommand(use, short string, describe func(context.Context, *pipeline.Session) (plan.PackageDescription, error)) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, logger, err := setup()
			if err != nil {
				return err
			}
			session, err := pkg.NewSession(req, logger)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			desc, err := describe(ctx, session)
			if err != nil {
				return err
			}
			if publish {
				path, err := pipeline.PackageStore{Root: req.Config.PackagesDir}.Publish(desc)
				if err != nil {
					return fmt.Errorf("failed to publish package: %w", err)
				}
				logger.Info("📤 Package published", "path", path)
			}
			return printJSON(desc)
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "Also record the package in the packages directory")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	return describeCommand("describe", "Write and print the package description", func(_ context.Context, s *pipeline.Session) (plan.PackageDescription, error) {
		return s.Describe()
	})
}

func newRunCmd() *cobra.Command {
	return describeCommand("run", "Run every remaining stage and print the package description", func(ctx context.Context, s *pipeline.Session) (plan.PackageDescription, error) {
		return s.Run(ctx)
	})
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved options, CMake definitions and package description",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			req, logger, err := setup()
			if err != nil {
				return err
			}
			p, err := pkg.PlanBuild(req, logger)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
}

func newMatrixCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "List the CI build matrix, without shared Visual Studio builds",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}

			osName := settings.os
			if osName == "" {
				osName = platform.Detect().OS
			}
			builds := matrix.Filter(matrix.Generate(matrix.DefaultAxes(osName)), logger)

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
			}
			for _, b := range builds {
				fmt.Println(b.Name())
				if outDir == "" {
					continue
				}
				if err := b.Profile().Save(filepath.Join(outDir, b.Name()+".yaml")); err != nil {
					return fmt.Errorf("failed to write profile for %s: %w", b.Name(), err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write one YAML profile per build into this folder")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [version...]",
		Short: "Verify cached source archives against the recipe checksums",
		RunE: func(_ *cobra.Command, args []string) error {
			req, logger, err := setup()
			if err != nil {
				return err
			}
			statuses, verifyErr := pkg.VerifyCache(req, args, logger)
			if err := printJSON(statuses); err != nil {
				return err
			}
			return verifyErr
		},
	}
}
