package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// locksDirName is the subdirectory for lock files. Using a
// subdirectory keeps lock churn out of the data directory.
const locksDirName = ".locks"

// LockTimeout is the timeout for acquiring the file lock.
const LockTimeout = 2 * time.Second

const dirPerms = 0o750

// Lock errors.
var (
	errLockTimeout  = errors.New("lock timeout")
	errLockFileOpen = errors.New("failed to open lock file")
)

// WithLock executes handler while holding an exclusive advisory lock
// derived from the given path. The lock serializes load-mutate-save
// spans between processes on the same filesystem; it is advisory only,
// so writers that bypass it (or sit on a filesystem without flock
// semantics) still race last-writer-wins.
func WithLock(path string, handler func() error) error {
	lock, lockErr := acquireLock(path)
	if lockErr != nil {
		return fmt.Errorf("acquiring lock: %w", lockErr)
	}

	defer lock.release()

	return handler()
}

// fileLock represents a held lock.
type fileLock struct {
	path string
	file *os.File
}

// release removes the lock file while still holding the lock, then
// unlocks and closes. Order matters.
func (l *fileLock) release() {
	if l.file != nil {
		_ = os.Remove(l.path)
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// acquireLockWithTimeout tries to take an exclusive flock on a .lock
// file next to the data file. After acquiring, the inode is
// re-verified: a holder that released may have removed the lock file
// under us, in which case we retry against the fresh one.
func acquireLockWithTimeout(path string, timeout time.Duration) (*fileLock, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	locksDir := filepath.Join(dir, locksDirName)
	lockPath := filepath.Join(locksDir, base+".lock")

	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}

		mkdirErr := os.MkdirAll(locksDir, dirPerms)
		if mkdirErr != nil {
			return nil, fmt.Errorf("creating locks dir: %w", mkdirErr)
		}

		file, openErr := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerms)
		if openErr != nil {
			return nil, fmt.Errorf("%w: %w", errLockFileOpen, openErr)
		}

		var openStat unix.Stat_t

		statErr := unix.Fstat(int(file.Fd()), &openStat)
		if statErr != nil {
			_ = file.Close()

			return nil, fmt.Errorf("fstat lock file: %w", statErr)
		}

		fd := int(file.Fd())
		done := make(chan error, 1)

		go func() {
			done <- unix.Flock(fd, unix.LOCK_EX)
		}()

		select {
		case flockErr := <-done:
			if flockErr != nil {
				_ = file.Close()

				return nil, fmt.Errorf("flock: %w", flockErr)
			}

			var pathStat unix.Stat_t

			reStatErr := unix.Stat(lockPath, &pathStat)
			if reStatErr != nil || pathStat.Ino != openStat.Ino {
				// File was deleted/replaced while we waited; retry.
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &fileLock{path: lockPath, file: file}, nil
		case <-time.After(remaining):
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}
	}
}

// acquireLock takes the lock with the default timeout.
func acquireLock(path string) (*fileLock, error) {
	return acquireLockWithTimeout(path, LockTimeout)
}
