// Package git provides the Git operations used by gitwatch.
//
// Mutating operations shell out to the git executable through a
// CommandExecutor so the index, hooks and credentials behave exactly as they
// do for the user. Repository discovery and .gitignore parsing use go-git,
// which needs no subprocess.
//
// # Core Components
//
// - Repository: runs add, rm --cached, check-ignore, diff --cached, commit, push and reset in one directory
// - CommandExecutor: interface for executing commands, replaced by a recorder in tests
// - Worktree: repository root and ignore rules for a watched directory
//
// # Error Handling
//
// Every failed command is returned as a *errors.GitError wrapping
// errors.ErrCommandFailed. Output that identifies a missing repository or an
// empty commit is additionally wrapped with errors.ErrNotGitRepository or
// errors.ErrNothingToCommit, and push failures with errors.ErrPushFailed, so
// callers can classify results with errors.Classify.
//
// # Usage
//
//	repo := git.NewRepository("/path/to/project", git.NewExecExecutor(), 30*time.Second)
//	if err := repo.Add(ctx, []string{"main.go"}); err != nil {
//	    // Handle error
//	}
//	staged, err := repo.StagedPaths(ctx, []string{"main.go"})
//	if err != nil || len(staged) == 0 {
//	    // Nothing to commit
//	}
//	if err := repo.Commit(ctx, "auto commit", staged); err != nil {
//	    // Handle error
//	}
package git
