package runstate

import (
	"fmt"

	"github.com/gofrs/flock"
)

// RunLock enforces single-run execution against one state database.
// Concurrent runs would race on the ledger and double-execute plans.
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock builds a lock alongside the state database file.
func NewRunLock(dbPath string) *RunLock {
	path := dbPath + ".lock"
	return &RunLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock or fails fast when another run holds it.
func (l *RunLock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another run is already using %s", l.path)
	}
	return nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}
