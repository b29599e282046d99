package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"

	"github.com/provide-io/flavor/go/bullet3/pkg/archive"
	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
)

// Archive is a verified local copy of a source snapshot.
type Archive struct {
	Path   string
	Digest digest.Digest
	// Cached is true when no download happened.
	Cached bool
}

// Fetcher acquires and extracts sources.
type Fetcher struct {
	client      *retryablehttp.Client
	lockTimeout time.Duration
	logger      hclog.Logger
}

// NewFetcher creates a Fetcher. A zero lockTimeout waits for the cache lock
// until ctx is done.
func NewFetcher(client *retryablehttp.Client, lockTimeout time.Duration, logger hclog.Logger) *Fetcher {
	return &Fetcher{
		client:      client,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Acquire makes sure src.CachePath holds the archive and verifies it. An
// existing cache file is reused unless force is set; verification always
// runs. The whole sequence holds the cache lock.
func (f *Fetcher) Acquire(ctx context.Context, src Source, force bool) (*Archive, error) {
	unlock, err := acquireLock(ctx, src.CachePath, f.lockTimeout, f.logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cached := false
	if _, err := os.Stat(src.CachePath); err == nil && !force {
		f.logger.Info("📦 Skipping download. Using cached archive", "path", src.CachePath)
		cached = true
		if err := VerifyFile(src.CachePath, src.Digest); err != nil {
			f.logger.Error("🚨 Archive checksum mismatch", "path", src.CachePath, "error", err)
			return nil, err
		}
	} else {
		if force {
			f.logger.Debug("🔁 Forced download requested")
		}
		f.logger.Info("🌐 Downloading source", "name", src.Name, "url", src.URL)
		if err := f.download(ctx, src.URL, src.CachePath, src.Digest); err != nil {
			return nil, err
		}
	}
	f.logger.Debug("✅ Archive checksum verified", "digest", src.Digest.String())

	return &Archive{Path: src.CachePath, Digest: src.Digest, Cached: cached}, nil
}

// download writes url into a temp file next to dest, verifies it against
// expected and only then renames it into place. A failed or corrupt
// transfer never reaches the cache.
func (f *Fetcher) download(ctx context.Context, url, dest string, expected digest.Digest) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &rerrors.NetworkError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return &rerrors.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &rerrors.NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), DirPerms); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return &rerrors.NetworkError{URL: url, StatusCode: resp.StatusCode, Err: copyErr}
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download file: %w", closeErr)
	}
	if err := VerifyFile(tmpPath, expected); err != nil {
		os.Remove(tmpPath)
		var integrity *rerrors.IntegrityError
		if errors.As(err, &integrity) {
			integrity.Path = url
		}
		f.logger.Error("🚨 Downloaded archive checksum mismatch", "url", url, "error", err)
		return err
	}
	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		f.logger.Debug("⚠️ Failed to chmod download", "error", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving download into cache: %w", err)
	}

	f.logger.Debug("💾 Download complete", "path", dest, "bytes", written)
	return nil
}

// VerifyFile checks the content digest of path against expected.
func VerifyFile(path string, expected digest.Digest) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for verification: %w", path, err)
	}
	defer file.Close()

	actual, err := expected.Algorithm().FromReader(file)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if actual != expected {
		return &rerrors.IntegrityError{Path: path, Expected: expected.String(), Actual: actual.String()}
	}
	return nil
}

// Extract unpacks a verified archive into workDir and moves the extracted
// top-level directory to workDir/subfolder. An existing subfolder is a
// conflict; it is never overwritten.
func (f *Fetcher) Extract(a *Archive, src Source, workDir, subfolder string) (string, error) {
	canonical := filepath.Join(workDir, subfolder)
	if _, err := os.Lstat(canonical); err == nil {
		return "", &rerrors.ConflictError{Path: canonical}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", canonical, err)
	}

	if err := os.MkdirAll(workDir, DirPerms); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	if err := f.checkDiskSpace(a.Path, workDir); err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp(workDir, ".extract-")
	if err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			f.logger.Debug("⚠️ Failed to remove extraction directory", "path", tmpDir, "error", err)
		}
	}()

	f.logger.Info("📂 Extracting source", "archive", a.Path, "dest", canonical)
	if err := archive.Extract(a.Path, tmpDir, f.logger); err != nil {
		return "", err
	}

	extracted := filepath.Join(tmpDir, src.ExtractedDir)
	if info, err := os.Stat(extracted); err != nil || !info.IsDir() {
		return "", fmt.Errorf("archive %s has no top-level %s directory", filepath.Base(a.Path), src.ExtractedDir)
	}
	if err := os.Rename(extracted, canonical); err != nil {
		return "", fmt.Errorf("moving %s to %s: %w", src.ExtractedDir, subfolder, err)
	}

	f.logger.Debug("✅ Source ready", "path", canonical)
	return canonical, nil
}

// Source acquires, verifies and extracts src. Nothing is extracted unless
// verification passed.
func (f *Fetcher) Source(ctx context.Context, src Source, workDir, subfolder string, force bool) (string, error) {
	a, err := f.Acquire(ctx, src, force)
	if err != nil {
		return "", err
	}
	return f.Extract(a, src, workDir, subfolder)
}

// checkDiskSpace verifies there's enough disk space for extraction
func (f *Fetcher) checkDiskSpace(archivePath, workDir string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}
	needed := info.Size() * DiskSpaceMultiplier

	available, err := freeBytes(workDir)
	if err != nil {
		f.logger.Warn("⚠️ Could not check disk space", "error", err)
		return nil // Don't fail if we can't check
	}

	neededMB := float64(needed) / (1024 * 1024)
	availableMB := float64(available) / (1024 * 1024)
	f.logger.Debug("💾 Disk space check", "needed_mb", fmt.Sprintf("%.2f", neededMB), "available_mb", fmt.Sprintf("%.2f", availableMB))

	if available < needed {
		return fmt.Errorf("insufficient disk space: need %.2f MB, have %.2f MB", neededMB, availableMB)
	}
	return nil
}
