package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/sickfar/mdumb/internal/checksum"
)

// instanceLock guards a content root against a second server (and its git
// sync loop) on the same machine.
type instanceLock struct {
	fl *flock.Flock
}

// lockPath derives a per-root lock file name from the canonical root path.
func lockPath(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return filepath.Join(os.TempDir(), "mdumb-"+checksum.Sum([]byte(root))[:12]+".lock")
}

func acquireLock(root string) (*instanceLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	fl := flock.New(lockPath(root))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("another mdumb instance is serving %s (lock %s)", root, fl.Path())
	}
	return &instanceLock{fl: fl}, nil
}

func (l *instanceLock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	_ = os.Remove(l.fl.Path())
	return nil
}
