package version

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// LockFileName is the per-vault indexing lock within the data directory.
const LockFileName = "index.lock"

// Lock serializes indexing runs against one vault. The version file is a
// singleton resource; two concurrent runs could corrupt it.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the vault lock without blocking. A held lock surfaces
// as a fatal vault-locked error.
func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, oerrors.IOError("create data directory", err)
	}

	fl := flock.New(filepath.Join(dataDir, LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, oerrors.IOError("acquire vault lock", err)
	}
	if !locked {
		return nil, oerrors.New(oerrors.ErrCodeVaultLocked,
			"another indexing run holds the vault lock", nil)
	}
	return &Lock{fl: fl}, nil
}

// Release frees the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
