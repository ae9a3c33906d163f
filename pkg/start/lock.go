package start

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/papercomputeco/chronicle/pkg/dotdir"
)

const lockFileName = "chronicle.lock"

// Lock is an exclusive hold on a narrative's .chronicle directory. Exactly
// one writer process may hold it; a second chronicle process on the same
// narrative fails fast instead of interleaving turns.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the narrative lock for the resolved .chronicle
// directory. configDir overrides directory resolution when non-empty.
func AcquireLock(configDir string) (*Lock, error) {
	manager := dotdir.NewManager()
	dir, err := manager.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving chronicle dir: %w", err)
	}

	path := filepath.Join(dir, lockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("another chronicle process holds %s: %w", path, err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return l.file.Close()
}
