package migrate

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/stockroom/stockroom/internal/errors"
)

// storeLock guards a store file during migration. The lock is advisory and
// file-based so that a second process (or a crashed run's survivor) observing
// the store sees it busy rather than mid-rewrite.
type storeLock struct {
	fl *flock.Flock
}

// acquireLock takes the migration lock for a store file without blocking.
// A held lock means another migration is in flight.
func acquireLock(storePath string) (*storeLock, error) {
	// Canonical path so two callers naming the store differently contend on
	// the same lock file.
	if abs, err := filepath.Abs(storePath); err == nil {
		storePath = abs
	}
	fl := flock.New(storePath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.NewMigrationError(errors.CodeStoreBusy,
			fmt.Sprintf("cannot acquire lock for %s", storePath), err)
	}
	if !locked {
		return nil, errors.NewMigrationError(errors.CodeStoreBusy,
			fmt.Sprintf("store %s is locked by another migration", storePath), nil)
	}
	return &storeLock{fl: fl}, nil
}

func (l *storeLock) release() {
	_ = l.fl.Unlock()
}
