package nanto

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// acquireRunLock takes an exclusive non-blocking flock for the project so two
// nanto runs cannot interleave stage side effects. The returned release func
// must be called when the run ends.
func acquireRunLock(project string) (func(), error) {
	lockPath := filepath.Join(LockDir, project+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errAnotherRunActive
		}
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	release := func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}
	return release, nil
}
