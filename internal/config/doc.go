// Package config loads the gitwatch configuration.
//
// A session's settings come from three places, in increasing priority:
//
// 1. The configuration file (JSON, or YAML for .yaml/.yml), written with defaults if absent
// 2. Environment variables
// 3. Command-line flags
//
// The file holds the commit, filter and branch policies:
//
//	watch_directory            Directory to watch, relative to the file (default: ".")
//	commit_delay               Quiet period in seconds before committing (default: 5)
//	max_files_per_commit       Paths per commit; the rest wait for the next one (default: 10)
//	commit_message_template    Message with {timestamp}, {files_count}, {files}, {change_type},
//	                           {category} and {branch} placeholders
//	exclude_patterns           Globs that are never committed
//	include_patterns           Globs that may be committed (empty means everything)
//	enable_branch_check        Only commit on allowed_branches (default: false)
//	allowed_branches           Branch names or globs
//	max_commit_message_length  Message length cap in characters (default: 100)
//	auto_push                  Push after every commit (default: true)
//	push_retries               Extra push attempts (default: 2)
//	command_timeout            Seconds allowed per git command (default: 30)
//	flush_on_exit              Commit pending changes on shutdown (default: true)
//	respect_gitignore          Skip paths ignored by .gitignore (default: true)
//
// # Environment Variables
//
//	GITWATCH_DEBUG     Enable debug logging (default: false)
//	GITWATCH_LOG_FILE  Path to log file (default: ~/.local/share/gitwatch/logs/gitwatch-<hash>.log)
//	GITWATCH_VERBOSE   Whether to show informational messages (default: true)
//
// A loaded Config is never mutated by the components it configures; Policy,
// Filter, Branches and Aggregation hand out copies.
package config
