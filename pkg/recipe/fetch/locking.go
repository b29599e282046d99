package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
)

// LockSuffix is appended to the cache path to name its lock file.
const LockSuffix = ".lock"

// lockRetryDelay is how often a blocked acquirer polls the lock.
const lockRetryDelay = 100 * time.Millisecond

// acquireLock takes an exclusive file lock guarding the acquire-and-verify
// sequence for one cache path. The returned func releases it.
func acquireLock(ctx context.Context, cachePath string, timeout time.Duration, logger hclog.Logger) (func(), error) {
	lockPath := cachePath + LockSuffix
	if err := os.MkdirAll(filepath.Dir(lockPath), DirPerms); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	lock := flock.New(lockPath)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	if !locked {
		logger.Info("⏳ Cache locked by another build, waiting", "lock", lockPath, "timeout", timeout)

		waitCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		locked, err = lock.TryLockContext(waitCtx, lockRetryDelay)
		if err == nil && !locked {
			err = waitCtx.Err()
		}
		if err != nil {
			return nil, fmt.Errorf("timeout waiting for cache lock %s: %w", lockPath, err)
		}
	}

	logger.Debug("🔒 Acquired cache lock", "lock", lockPath, "pid", os.Getpid())
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Debug("⚠️ Failed to release cache lock", "error", err)
			return
		}
		logger.Debug("🔓 Released cache lock", "lock", lockPath)
	}, nil
}
