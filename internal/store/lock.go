package store

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run is already in progress")

// Lock is an exclusive advisory lock held for the duration of a run.
type Lock struct {
	f *flock.Flock
}

// AcquireLock takes the lock file next to the database without blocking.
func AcquireLock(dbPath string) (*Lock, error) {
	f := flock.New(dbPath + ".lock")

	ok, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", f.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", f.Path(), ErrLocked)
	}

	return &Lock{f: f}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Unlock()
}
