// Package main implements the gitwatch command.
//
// # Usage
//
//	gitwatch start [config-path]   Watch and auto-commit until interrupted (default config: gitwatch.json)
//	gitwatch init [config-path]    Write the default configuration file
//	gitwatch version               Print version information
//
// # Flags for start
//
//	--debug            Enable debug logging
//	--log-file PATH    Path to the debug log
//	--quiet            Hide informational messages
//
// Flags override the GITWATCH_DEBUG, GITWATCH_LOG_FILE and GITWATCH_VERBOSE
// environment variables.
//
// # Signals
//
// SIGINT, SIGTERM and SIGHUP stop the watcher, wait for any running commit
// and, with flush_on_exit, commit what is still pending. A second signal
// exits immediately.
//
// # Exit Codes
//
//	0    clean shutdown
//	1    unexpected failure
//	2    invalid configuration or flags
//	3    git missing or the directory is not in a repository
//	4    another gitwatch instance holds the lock
//	5    the file watcher could not start
package main
