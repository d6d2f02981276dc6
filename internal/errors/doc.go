// Package errors provides the error types shared by the gitwatch packages.
//
// Sentinel errors (ErrNotGitRepository, ErrNothingToCommit, ErrPushFailed and
// so on) identify failure categories and are matched with Is. The wrapper types
// add context while keeping the sentinel reachable through Unwrap:
//
//   - GitError: a failed git invocation with its arguments and output
//   - LockError: a lock file that could not be taken or released
//   - ConfigError: an invalid configuration value
//   - WatchError: the file watcher could not observe the directory
//
// Classify reduces any error to a Kind, which is what the flush loop uses to
// decide whether to keep a batch, retry later, or stop:
//
//	switch errors.Classify(err) {
//	case errors.KindNothingToCommit:
//	    // benign
//	case errors.KindNoRepository:
//	    // fatal
//	}
//
// Wrap, Wrapf, Is, As and Join are thin helpers over the standard library so
// callers need only one errors import.
package errors
