package cmd

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lunikdev/pledo/internal/config"
)

var instanceLock *flock.Flock

// AcquireLock takes the single-instance daemon lock. It reports false when
// another daemon holds it.
func AcquireLock() (bool, error) {
	lock := flock.New(filepath.Join(config.GetRuntimeDir(), "pledo.lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		return false, err
	}
	instanceLock = lock
	return true, nil
}

// ReleaseLock releases the lock taken by AcquireLock.
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
