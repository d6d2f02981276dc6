package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// DefaultCommandTimeout bounds every git invocation when no timeout is configured.
const DefaultCommandTimeout = 30 * time.Second

// pathChunk caps the number of pathspecs passed to a single git invocation.
const pathChunk = 200

// Repository drives the git executable for one working directory. All paths
// are relative to Dir and are passed to git as literal pathspecs.
type Repository struct {
	// Dir is the directory git runs in (git -C Dir).
	Dir string

	executor CommandExecutor
	timeout  time.Duration
}

// NewRepository returns a Repository that runs git in dir through executor.
// A non-positive timeout selects DefaultCommandTimeout.
func NewRepository(dir string, executor CommandExecutor, timeout time.Duration) *Repository {
	if executor == nil {
		executor = NewExecExecutor()
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Repository{Dir: dir, executor: executor, timeout: timeout}
}

// IsRepository checks if the given path is inside a git work tree.
// If git exits with code 128 the path is not a repository and (false, nil)
// is returned. Other failures (git missing, permissions) are returned as errors.
func IsRepository(path string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCommandTimeout)
	defer cancel()

	err := NewExecExecutor().ExecuteWithContext(ctx, "git", "-C", path, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		// Exit code 128 is git's generic fatal code; for rev-parse it almost
		// always means there is no repository here.
		var exitErr *exec.ExitError
		if gitwatchErrors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CurrentBranch returns the checked-out branch name. A detached HEAD yields
// an empty string and no error.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Add stages the current content of paths.
func (r *Repository) Add(ctx context.Context, paths []string) error {
	return r.chunked(ctx, paths, "add", "--")
}

// Remove stages the removal of paths from the index, leaving the working
// tree alone. Paths git does not know about are ignored.
func (r *Repository) Remove(ctx context.Context, paths []string) error {
	return r.chunked(ctx, paths, "rm", "--cached", "-r", "-q", "--ignore-unmatch", "--")
}

// StagedPaths returns those of paths whose index entry differs from HEAD,
// relative to Dir. Changes staged outside paths are not reported.
func (r *Repository) StagedPaths(ctx context.Context, paths []string) ([]string, error) {
	var staged []string
	err := r.forEachChunk(paths, func(chunk []string) error {
		args := append([]string{"diff", "--cached", "--name-only", "--no-renames", "--relative", "-z", "--"}, chunk...)
		out, err := r.output(ctx, args...)
		if err != nil {
			return err
		}
		staged = append(staged, splitNUL(out)...)
		return nil
	})
	return staged, err
}

// Ignored returns those of paths git would refuse to add because an ignore
// rule matches them: the work tree's .gitignore files as they are now,
// info/exclude and core.excludesFile. Tracked paths are never reported.
func (r *Repository) Ignored(ctx context.Context, paths []string) ([]string, error) {
	var ignored []string
	err := r.forEachChunk(paths, func(chunk []string) error {
		args := append([]string{"check-ignore", "-z", "--"}, chunk...)
		out, err := r.output(ctx, args...)
		if err != nil {
			// Exit status 1 means none of the paths is ignored.
			var exitErr *exec.ExitError
			if gitwatchErrors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
				return nil
			}
			return err
		}
		ignored = append(ignored, splitNUL(out)...)
		return nil
	})
	return ignored, err
}

// Commit records message. With paths, only those paths are committed and
// anything else staged in the index is left in place for the user.
func (r *Repository) Commit(ctx context.Context, message string, paths []string) error {
	args := []string{"commit", "-q", "-m", message}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	return r.run(ctx, args...)
}

// Push publishes the current branch to its upstream.
func (r *Repository) Push(ctx context.Context) error {
	if err := r.run(ctx, "push", "-q"); err != nil {
		return fmt.Errorf("%w: %w", gitwatchErrors.ErrPushFailed, err)
	}
	return nil
}

// Unstage resets the index entries for paths back to HEAD. In a repository
// without commits the entries are dropped from the index instead.
func (r *Repository) Unstage(ctx context.Context, paths []string) error {
	err := r.chunked(ctx, paths, "reset", "-q", "--")
	if err == nil || gitwatchErrors.Classify(err) == gitwatchErrors.KindNoRepository {
		return err
	}

	if _, headErr := r.output(ctx, "rev-parse", "--verify", "-q", "HEAD"); headErr == nil {
		return err
	}
	return r.chunked(ctx, paths, "rm", "--cached", "-r", "-q", "--ignore-unmatch", "--")
}

func (r *Repository) chunked(ctx context.Context, paths []string, args ...string) error {
	return r.forEachChunk(paths, func(chunk []string) error {
		full := append(append([]string{}, args...), chunk...)
		return r.run(ctx, full...)
	})
}

func (r *Repository) forEachChunk(paths []string, fn func(chunk []string) error) error {
	for start := 0; start < len(paths); start += pathChunk {
		end := min(start+pathChunk, len(paths))
		if err := fn(paths[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func splitNUL(out string) []string {
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func (r *Repository) run(ctx context.Context, args ...string) error {
	_, err := r.output(ctx, args...)
	return err
}

// output runs a git subcommand in Dir under the configured timeout and maps
// well-known failure text onto sentinel errors.
func (r *Repository) output(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	allArgs := append([]string{"--literal-pathspecs", "-C", r.Dir}, args...)
	out, err := r.executor.ExecuteWithContextAndOutput(ctx, "git", allArgs...)
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

func classify(err error) error {
	var gitErr *gitwatchErrors.GitError
	if !gitwatchErrors.As(err, &gitErr) {
		return err
	}

	out := strings.ToLower(gitErr.Output)
	switch {
	case strings.Contains(out, "not a git repository"):
		return fmt.Errorf("%w: %w", gitwatchErrors.ErrNotGitRepository, err)
	case strings.Contains(out, "nothing to commit"),
		strings.Contains(out, "no changes added to commit"),
		strings.Contains(out, "nothing added to commit"):
		return fmt.Errorf("%w: %w", gitwatchErrors.ErrNothingToCommit, err)
	}
	return err
}
