package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
)

const version = "0.1.0"

var (
	logLevel    string
	envFiles    []string
	profilePath string
	optionArgs  []string
	pkgVersion  string
	workDir     string
	sourceDir   string
	buildDir    string
	packageDir  string
	forceFetch  bool
	validation  string
	settings    settingsFlags
	rootCmd     *cobra.Command
)

type settingsFlags struct {
	os              string
	arch            string
	compiler        string
	compilerVersion string
	runtime         string
	buildType       string
}

func getBuildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func printVersion() {
	r := recipe.Bullet3()
	fmt.Printf("bullet3-recipe %s (%s)\n", version, r.Reference())
	fmt.Printf("Built: %s\n", getBuildTimestamp())
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "bullet3-recipe",
		Short: "Fetch, build and package the Bullet Physics SDK",
		Long: `Fetch, build and package the Bullet Physics SDK.

Sources are downloaded once into the cache directory and verified against
the recipe checksum before every use. Options and settings come from a YAML
profile, overridden by -o name=value and the settings flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error; json:<level> for JSON)")
	pf.StringArrayVar(&envFiles, "env-file", nil, "Load environment from a dotenv file (repeatable)")
	pf.StringVar(&profilePath, "profile", "", "YAML profile with options and settings")
	pf.StringArrayVarP(&optionArgs, "option", "o", nil, "Option override name=value (repeatable)")
	pf.StringVar(&pkgVersion, "package-version", "", "Source version to build (defaults to the recipe version)")
	pf.StringVarP(&workDir, "work-dir", "w", ".", "Directory holding the source, build and package folders")
	pf.StringVar(&sourceDir, "source-dir", "", "Folder receiving the sources (default <work-dir>/source)")
	pf.StringVar(&buildDir, "build-dir", "", "Build tree folder (default <work-dir>/build)")
	pf.StringVar(&packageDir, "package-dir", "", "Install folder (default <work-dir>/package)")
	pf.BoolVar(&forceFetch, "force-download", false, "Download the sources even when cached")
	pf.StringVar(&validation, "validation", "", "Option validation level (strict, relaxed)")

	pf.StringVar(&settings.os, "os", "", "Target operating system setting")
	pf.StringVar(&settings.arch, "arch", "", "Target architecture setting")
	pf.StringVar(&settings.compiler, "compiler", "", "Compiler setting")
	pf.StringVar(&settings.compilerVersion, "compiler-version", "", "Compiler version setting")
	pf.StringVar(&settings.runtime, "compiler-runtime", "", "Compiler runtime setting (MT, MD, MTd, MDd)")
	pf.StringVar(&settings.buildType, "build-type", "", "Build type setting (Release, Debug, ...)")

	rootCmd.AddCommand(
		newSourceCmd(),
		newConfigureCmd(),
		newBuildCmd(),
		newInstallCmd(),
		newDescribeCmd(),
		newRunCmd(),
		newPlanCmd(),
		newMatrixCmd(),
		newVerifyCmd(),
	)
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		printVersion()
		os.Exit(0)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
