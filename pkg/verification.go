package pkg

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
)

// CacheStatus is the state of one cached source archive.
type CacheStatus struct {
	Version string `json:"version"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// VerifyCache checks the cached archives of the given versions, or every
// version the recipe knows a checksum for. Missing archives are reported
// but are not failures; a corrupt archive is.
func VerifyCache(req Request, versions []string, logger hclog.Logger) ([]CacheStatus, error) {
	r := recipe.Bullet3()
	resolver, err := r.Resolver(req.Config.CacheDir)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		versions = resolver.Versions()
	}

	logger.Info("🔍 Verifying cached sources", "cache", req.Config.CacheDir, "versions", len(versions))

	var (
		statuses []CacheStatus
		failed   int
	)
	for _, v := range versions {
		src, err := resolver.Resolve(v)
		if err != nil {
			return statuses, err
		}

		status := CacheStatus{Version: src.Version, Path: src.CachePath}
		if _, err := os.Stat(src.CachePath); errors.Is(err, os.ErrNotExist) {
			logger.Info("➖ Not cached", "version", src.Version)
			statuses = append(statuses, status)
			continue
		}
		status.Present = true

		if err := fetch.VerifyFile(src.CachePath, src.Digest); err != nil {
			status.Error = err.Error()
			failed++
			logger.Error("✗ Cached archive invalid", "version", src.Version, "error", err)
		} else {
			status.Valid = true
			logger.Info("✓ Cached archive valid", "version", src.Version)
		}
		statuses = append(statuses, status)
	}

	if failed > 0 {
		return statuses, fmt.Errorf("%d cached archive(s) failed verification", failed)
	}
	return statuses, nil
}
