// Package cmake drives the external CMake tool through the configure, build
// and install steps of a package build.
package cmake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/pkg/logging"
	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
)

// Build steps, used to label failures.
const (
	StepConfigure = "configure"
	StepBuild     = "build"
	StepInstall   = "install"
)

// DefaultExecutable is looked up on PATH when no explicit tool is given.
const DefaultExecutable = "cmake"

// BuildSystem is the external build tool seen by the package pipeline.
type BuildSystem interface {
	Configure(ctx context.Context, defs plan.Definitions) error
	Build(ctx context.Context) error
	Install(ctx context.Context) error
}

// CommandFunc creates the process for one tool invocation.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner invokes cmake out of source: SourceDir is configured into BuildDir.
type Runner struct {
	Executable string
	Generator  string
	SourceDir  string
	BuildDir   string
	BuildType  string
	// InstallPrefix overrides the configured prefix at install time.
	InstallPrefix string
	Jobs          int
	ExtraArgs     []string
	Env           []string
	Command       CommandFunc

	logger hclog.Logger
}

// NewRunner returns a runner for sourceDir/buildDir using the cmake on PATH.
func NewRunner(sourceDir, buildDir, buildType string, logger hclog.Logger) *Runner {
	return &Runner{
		Executable: DefaultExecutable,
		SourceDir:  sourceDir,
		BuildDir:   buildDir,
		BuildType:  buildType,
		Command:    exec.CommandContext,
		logger:     logger.Named("cmake"),
	}
}

// ConfigureArgs returns the arguments of the configure step.
func (r *Runner) ConfigureArgs(defs plan.Definitions) []string {
	args := []string{"-S", r.SourceDir, "-B", r.BuildDir}
	if r.Generator != "" {
		args = append(args, "-G", r.Generator)
	}
	args = append(args, defs.Args()...)
	return append(args, r.ExtraArgs...)
}

// BuildArgs returns the arguments of the build step.
func (r *Runner) BuildArgs() []string {
	args := []string{"--build", r.BuildDir}
	if r.BuildType != "" {
		args = append(args, "--config", r.BuildType)
	}
	if r.Jobs > 0 {
		args = append(args, "--parallel", fmt.Sprint(r.Jobs))
	}
	return args
}

// InstallArgs returns the arguments of the install step.
func (r *Runner) InstallArgs() []string {
	args := []string{"--install", r.BuildDir}
	if r.BuildType != "" {
		args = append(args, "--config", r.BuildType)
	}
	if r.InstallPrefix != "" {
		args = append(args, "--prefix", r.InstallPrefix)
	}
	return args
}

// Configure generates the build tree.
func (r *Runner) Configure(ctx context.Context, defs plan.Definitions) error {
	if err := os.MkdirAll(r.BuildDir, 0o755); err != nil {
		return &rerrors.BuildToolError{Step: StepConfigure, Err: err}
	}
	return r.run(ctx, StepConfigure, r.ConfigureArgs(defs))
}

// Build compiles the configured tree.
func (r *Runner) Build(ctx context.Context) error {
	return r.run(ctx, StepBuild, r.BuildArgs())
}

// Install copies build outputs to the install prefix.
func (r *Runner) Install(ctx context.Context) error {
	return r.run(ctx, StepInstall, r.InstallArgs())
}

// CommandLine renders the invocation of a step for display.
func (r *Runner) CommandLine(args []string) string {
	return Join(append([]string{r.executable()}, args...))
}

func (r *Runner) executable() string {
	if r.Executable == "" {
		return DefaultExecutable
	}
	return r.Executable
}

func (r *Runner) run(ctx context.Context, step string, args []string) error {
	command := r.Command
	if command == nil {
		command = exec.CommandContext
	}
	logger := r.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cmd := command(ctx, r.executable(), args...)
	cmd.Env = append(os.Environ(), r.Env...)

	stdout := logging.NewLogWriter(logger, hclog.Info, "stdout")
	stderr := logging.NewLogWriter(logger, hclog.Warn, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Info("🚀 Running build step", "step", step)
	logger.Debug("🚀 Full command", "command", r.CommandLine(args))

	if err := cmd.Start(); err != nil {
		return &rerrors.BuildToolError{Step: step, Err: fmt.Errorf("failed to start %s: %w", r.executable(), err)}
	}
	err := cmd.Wait()
	_ = stdout.Flush()
	_ = stderr.Flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error("❌ Build step failed", "step", step, "code", exitErr.ExitCode())
			return &rerrors.BuildToolError{Step: step, Err: fmt.Errorf("exit code %d: %w", exitErr.ExitCode(), err)}
		}
		return &rerrors.BuildToolError{Step: step, Err: err}
	}

	logger.Info("✅ Build step completed", "step", step)
	return nil
}
