// Package config loads the recipe tool's settings from dotenv files and the
// process environment, and build profiles from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/cmake"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
)

// Environment variables.
const (
	EnvCacheDir       = "BULLET3_CACHE_DIR"
	EnvForceDownload  = "BULLET3_FORCE_DOWNLOAD"
	EnvHTTPTimeout    = "BULLET3_HTTP_TIMEOUT"
	EnvHTTPRetries    = "BULLET3_HTTP_RETRIES"
	EnvLockTimeout    = "BULLET3_LOCK_TIMEOUT"
	EnvValidation     = "BULLET3_VALIDATION"
	EnvCMake          = "BULLET3_CMAKE"
	EnvCMakeGenerator = "BULLET3_CMAKE_GENERATOR"
	EnvCMakeArgs      = "BULLET3_CMAKE_ARGS"
	EnvCMakeJobs      = "BULLET3_CMAKE_JOBS"
	EnvPackagesDir    = "BULLET3_PACKAGES_DIR"
)

// packagesSubdir holds installed packages below the cache directory.
const packagesSubdir = "packages"

// Config is read once at startup and not modified afterwards.
type Config struct {
	CacheDir      string
	PackagesDir   string
	ForceDownload bool
	HTTPTimeout   time.Duration
	HTTPRetries   int
	LockTimeout   time.Duration
	Validation    options.ValidationLevel

	CMake          string
	CMakeGenerator string
	CMakeArgs      []string
	CMakeJobs      int
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		CacheDir:    os.TempDir(),
		PackagesDir: filepath.Join(os.TempDir(), packagesSubdir),
		HTTPTimeout: fetch.DefaultHTTPTimeout,
		HTTPRetries: fetch.DefaultHTTPRetries,
		LockTimeout: fetch.DefaultLockTimeout,
		Validation:  options.ValidationStrict,
		CMake:       cmake.DefaultExecutable,
	}
}

// Load reads envFiles into the environment without overriding variables
// that are already set, then builds the config from the environment. With no
// envFiles a ".env" in the working directory is loaded if present.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the config from getenv lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	var err error

	if v := strings.TrimSpace(getenv(EnvCacheDir)); v != "" {
		cfg.CacheDir = v
	}
	cfg.PackagesDir = filepath.Join(cfg.CacheDir, packagesSubdir)
	if v := strings.TrimSpace(getenv(EnvPackagesDir)); v != "" {
		cfg.PackagesDir = v
	}
	if cfg.ForceDownload, err = parseBool(getenv, EnvForceDownload, false); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = parseDuration(getenv, EnvHTTPTimeout, cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPRetries, err = parseCount(getenv, EnvHTTPRetries, cfg.HTTPRetries); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = parseDuration(getenv, EnvLockTimeout, cfg.LockTimeout); err != nil {
		return nil, err
	}
	if cfg.Validation, err = options.ParseValidationLevel(getenv(EnvValidation)); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvValidation, err)
	}
	if v := strings.TrimSpace(getenv(EnvCMake)); v != "" {
		cfg.CMake = v
	}
	cfg.CMakeGenerator = strings.TrimSpace(getenv(EnvCMakeGenerator))
	if cfg.CMakeArgs, err = cmake.SplitArgs(getenv(EnvCMakeArgs)); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvCMakeArgs, err)
	}
	if cfg.CMakeJobs, err = parseCount(getenv, EnvCMakeJobs, 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ClientOptions returns the HTTP settings for the fetcher.
func (c *Config) ClientOptions() fetch.ClientOptions {
	return fetch.ClientOptions{
		Timeout: c.HTTPTimeout,
		Retries: c.HTTPRetries,
	}
}

func parseBool(getenv func(string) string, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(n) + "s"
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func parseCount(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def, fmt.Errorf("%s: invalid count %q", key, raw)
	}
	return n, nil
}
