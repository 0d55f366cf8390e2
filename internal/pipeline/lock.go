package pipeline

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"subservient/internal/services"
)

// Lock guards the library against a second mutating run.
type Lock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the lock at path without waiting. A lock held by another
// process is an ErrConflict.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrPermission, "pipeline", "create lock dir", filepath.Dir(path), err)
	}
	l := &Lock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrPermission, "pipeline", "acquire lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConflict, "pipeline", "acquire lock",
			"another subservient run holds "+path, nil)
	}
	return l, nil
}

// Path is the lock file.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
