package main

import (
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitEnvironment = 3
	exitLocked      = 4
	exitWatch       = 5
	exitInterrupted = 130
)

// exitCodeOf maps an error returned by a command to a process exit code.
func exitCodeOf(err error) int {
	switch {
	case err == nil:
		return exitOK
	case gitwatchErrors.Is(err, gitwatchErrors.ErrInvalidConfiguration),
		gitwatchErrors.Is(err, gitwatchErrors.ErrInvalidFlag):
		return exitConfig
	case gitwatchErrors.Is(err, gitwatchErrors.ErrGitNotFound),
		gitwatchErrors.Is(err, gitwatchErrors.ErrNotGitRepository):
		return exitEnvironment
	case gitwatchErrors.Is(err, gitwatchErrors.ErrAlreadyRunning),
		gitwatchErrors.Is(err, gitwatchErrors.ErrLockAcquisitionFailure):
		return exitLocked
	case gitwatchErrors.Is(err, gitwatchErrors.ErrWatchFailed):
		return exitWatch
	default:
		return exitFailure
	}
}
