// Package lock keeps two gitwatch processes from committing in the same
// directory at once.
//
// The lock is an flock(2) on a per-directory file in the temp directory.
// The kernel drops the flock when its holder exits, so a lock file left
// behind by a crashed process is simply taken over.
package lock

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Locker prevents concurrent gitwatch instances for one watch directory.
type Locker struct {
	lockFile string
	lockFd   *os.File
	pid      int
}

// Option configures a Locker.
type Option func(*Locker)

// WithDir places the lock file in dir instead of os.TempDir().
func WithDir(dir string) Option {
	return func(l *Locker) {
		l.lockFile = filepath.Join(dir, filepath.Base(l.lockFile))
	}
}

// New creates a Locker for watchDir. Nothing is locked until Acquire.
func New(watchDir string, opts ...Option) (*Locker, error) {
	if runtime.GOOS == "windows" {
		return nil, gitwatchErrors.NewLockError("", 0,
			gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure,
				"gitwatch currently only supports Unix-like operating systems"))
	}

	dirHash := fmt.Sprintf("%x", sha256.Sum256([]byte(filepath.Clean(watchDir))))[:16]
	l := &Locker{
		lockFile: filepath.Join(os.TempDir(), fmt.Sprintf("gitwatch-%s.lock", dirHash)),
		pid:      os.Getpid(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the lock file location.
func (l *Locker) Path() string {
	return l.lockFile
}

// Acquire takes the lock or fails with ErrAlreadyRunning naming the holder.
func (l *Locker) Acquire() error {
	if l.lockFd != nil {
		return nil
	}

	// A holder may unlink the file between our open and our flock; retry
	// until the locked inode is the one at lockFile.
	for attempt := 0; attempt < 3; attempt++ {
		fd, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_RDWR, 0o666)
		if err != nil {
			return gitwatchErrors.NewLockError(l.lockFile, 0,
				gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure, err.Error()))
		}

		if err := flock(fd); err != nil {
			_ = fd.Close()
			// EWOULDBLOCK and EAGAIN are distinct on some older systems.
			if gitwatchErrors.Is(err, syscall.EWOULDBLOCK) || gitwatchErrors.Is(err, syscall.EAGAIN) {
				return l.heldError()
			}
			return gitwatchErrors.NewLockError(l.lockFile, 0,
				gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure, err.Error()))
		}

		if !l.current(fd) {
			_ = fd.Close()
			continue
		}

		l.lockFd = fd
		if err := l.writePid(); err != nil {
			if releaseErr := l.Release(); releaseErr != nil {
				return gitwatchErrors.Wrapf(err, "releasing lock also failed: %v", releaseErr)
			}
			return err
		}
		return nil
	}

	return gitwatchErrors.NewLockError(l.lockFile, 0,
		gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure, "lock file kept changing underneath us"))
}

func flock(fd *os.File) error {
	return syscall.Flock(int(fd.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// current reports whether fd still refers to the file at lockFile.
func (l *Locker) current(fd *os.File) bool {
	held, err := fd.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(l.lockFile)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

func (l *Locker) writePid() error {
	if err := l.lockFd.Truncate(0); err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, l.pid,
			gitwatchErrors.Wrap(err, "failed to truncate lock file"))
	}
	if _, err := l.lockFd.WriteAt([]byte(strconv.Itoa(l.pid)), 0); err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, l.pid,
			gitwatchErrors.Wrap(err, "failed to write PID to lock file"))
	}
	return nil
}

func (l *Locker) heldError() error {
	pid, err := readPid(l.lockFile)
	if err != nil {
		// The holder may not have written its PID yet.
		return gitwatchErrors.NewLockError(l.lockFile, 0, gitwatchErrors.ErrAlreadyRunning)
	}
	return gitwatchErrors.NewLockError(l.lockFile, pid, gitwatchErrors.ErrAlreadyRunning)
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, gitwatchErrors.Wrap(err, "failed to read lock file")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, gitwatchErrors.Wrap(err, "invalid PID in lock file")
	}
	return pid, nil
}

// Release unlocks and removes the lock file. It is safe to call when the
// lock is not held.
func (l *Locker) Release() error {
	if l.lockFd == nil {
		return nil
	}

	var err error

	// Remove before unlocking so a waiter cannot lock a file we are about to unlink.
	if removeErr := os.Remove(l.lockFile); removeErr != nil && !os.IsNotExist(removeErr) {
		err = gitwatchErrors.NewLockError(l.lockFile, l.pid,
			gitwatchErrors.Wrap(removeErr, "failed to remove lock file"))
	}

	if flockErr := syscall.Flock(int(l.lockFd.Fd()), syscall.LOCK_UN); flockErr != nil && err == nil {
		err = gitwatchErrors.NewLockError(l.lockFile, l.pid,
			gitwatchErrors.Wrap(flockErr, "failed to release lock"))
	}

	// Always close; closing also drops the flock.
	if closeErr := l.lockFd.Close(); closeErr != nil && err == nil {
		err = gitwatchErrors.NewLockError(l.lockFile, l.pid,
			gitwatchErrors.Wrap(closeErr, "failed to close lock file"))
	}
	l.lockFd = nil

	return err
}
