package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tidal-downloader/tidal/internal/config"
)

var instanceLock *flock.Flock

func lockFilePath() string {
	return filepath.Join(config.GetRuntimeDir(), "tidal.lock")
}

// AcquireLock takes the single-instance lock. It reports false, without an
// error, when another process already holds it.
func AcquireLock() (bool, error) {
	if err := os.MkdirAll(config.GetRuntimeDir(), 0o755); err != nil {
		return false, fmt.Errorf("failed to create runtime dir: %w", err)
	}

	lock := flock.New(lockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return false, nil
	}
	instanceLock = lock
	return true, nil
}

// ReleaseLock drops the lock taken by AcquireLock.
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
