// Package gitwatch commits file changes to git automatically.
//
// gitwatch watches a directory inside a git repository and, once edits have
// stopped for a configurable quiet period, stages and commits everything that
// changed as a single commit, optionally pushing it. Bursts of saves during
// active work collapse into one commit.
//
// # Quick Start
//
//	# Write a default configuration, then start watching
//	gitwatch init
//	gitwatch start
//
//	# Press Ctrl+C to stop; pending changes are committed first
//
// # Key Features
//
//   - Trailing-edge debounce: the commit timer restarts on every change
//   - Include and exclude globs, plus the repository's .gitignore
//   - Branch allow-list so commits only land on branches you choose
//   - Oversized batches split across commits by max_files_per_commit
//   - Push with retries; a failed push never undoes the commit
//   - One instance per directory, enforced with a file lock
//
// # Module Structure
//
//   - cmd/gitwatch: Command-line interface
//   - internal/session: Wires the components for one watched directory
//   - internal/watcher: Recursive fsnotify watcher producing change events
//   - internal/filter: Include/exclude pattern matching
//   - internal/aggregator: Debounce state machine and flush serialization
//   - internal/guard: Branch allow-list
//   - internal/commit: Staging, commit messages, commit and push
//   - internal/git: git command execution and repository discovery
//   - internal/change: Change events and batches
//   - internal/config: Configuration file, environment and defaults
//   - internal/lock: File-based single-instance lock
//   - internal/logger: Terminal output and JSON debug log
//   - internal/errors: Error types and classification
package gitwatch
