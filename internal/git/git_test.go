package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git/gittest"
)

func failing(output string) func(context.Context, []string) (string, error) {
	return func(context.Context, []string) (string, error) {
		return "", gitwatchErrors.NewGitError("x", nil,
			fmt.Errorf("%w: exit status 1", gitwatchErrors.ErrCommandFailed), output)
	}
}

func TestRepositoryCommandLines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock := NewMockCommandExecutor()
	repo := NewRepository("/work", mock, time.Second)

	require.NoError(t, repo.Add(ctx, []string{"a.go", "-weird"}))
	require.NoError(t, repo.Remove(ctx, []string{"gone.txt"}))
	require.NoError(t, repo.Commit(ctx, "auto commit", []string{"a.go"}))
	require.NoError(t, repo.Push(ctx))
	require.NoError(t, repo.Unstage(ctx, []string{"a.go"}))

	assert.Equal(t, []string{
		"git --literal-pathspecs -C /work add -- a.go -weird",
		"git --literal-pathspecs -C /work rm --cached -r -q --ignore-unmatch -- gone.txt",
		"git --literal-pathspecs -C /work commit -q -m auto commit -- a.go",
		"git --literal-pathspecs -C /work push -q",
		"git --literal-pathspecs -C /work reset -q -- a.go",
	}, mock.Joined())
}

func TestRepositoryChunksLongPathLists(t *testing.T) {
	t.Parallel()

	mock := NewMockCommandExecutor()
	repo := NewRepository("/work", mock, time.Second)

	paths := make([]string, 450)
	for i := range paths {
		paths[i] = fmt.Sprintf("f%03d", i)
	}
	require.NoError(t, repo.Add(context.Background(), paths))

	require.Len(t, mock.Commands, 3)
	assert.Equal(t, "f000", mock.Commands[0][6])
	assert.Equal(t, "f449", mock.Commands[2][len(mock.Commands[2])-1])
}

func TestRepositoryEmptyPathListRunsNothing(t *testing.T) {
	t.Parallel()

	mock := NewMockCommandExecutor()
	repo := NewRepository("/work", mock, time.Second)

	require.NoError(t, repo.Add(context.Background(), nil))
	require.NoError(t, repo.Remove(context.Background(), []string{}))
	assert.Empty(t, mock.Commands)
}

func TestRepositoryErrorClassification(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		output string
		call   func(r *Repository) error
		want   gitwatchErrors.Kind
	}{
		"NotARepository": {
			output: "fatal: not a git repository (or any of the parent directories): .git",
			call:   func(r *Repository) error { return r.Add(context.Background(), []string{"a"}) },
			want:   gitwatchErrors.KindNoRepository,
		},
		"NothingToCommit": {
			output: "On branch main\nnothing to commit, working tree clean",
			call:   func(r *Repository) error { return r.Commit(context.Background(), "m", nil) },
			want:   gitwatchErrors.KindNothingToCommit,
		},
		"IndexLock": {
			output: "fatal: Unable to create '/work/.git/index.lock': File exists.",
			call:   func(r *Repository) error { return r.Add(context.Background(), []string{"a"}) },
			want:   gitwatchErrors.KindCommandFailed,
		},
		"PushRejected": {
			output: "! [rejected] main -> main (fetch first)",
			call:   func(r *Repository) error { return r.Push(context.Background()) },
			want:   gitwatchErrors.KindPushFailed,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockCommandExecutor()
			mock.ExecuteFn = failing(tc.output)
			err := tc.call(NewRepository("/work", mock, time.Second))

			require.Error(t, err)
			assert.Equal(t, tc.want, gitwatchErrors.Classify(err))
		})
	}
}

func TestRepositoryAppliesTimeout(t *testing.T) {
	t.Parallel()

	mock := NewMockCommandExecutor()
	var deadline time.Time
	mock.ExecuteFn = func(ctx context.Context, _ []string) (string, error) {
		deadline, _ = ctx.Deadline()
		return "", nil
	}

	repo := NewRepository("/work", mock, 2*time.Second)
	_, err := repo.CurrentBranch(context.Background())
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}

func TestRepositoryAgainstRealGit(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	ctx := context.Background()
	repo := NewRepository(dir, NewExecExecutor(), 10*time.Second)

	branch, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	staged, err := repo.StagedPaths(ctx, []string{"README.md"})
	require.NoError(t, err)
	assert.Empty(t, staged)

	gittest.WriteFile(t, dir, "src/[literal]*.go", "package src\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "README.md")))

	require.NoError(t, repo.Add(ctx, []string{"src/[literal]*.go"}))
	require.NoError(t, repo.Remove(ctx, []string{"README.md", "never-tracked.txt"}))

	staged, err = repo.StagedPaths(ctx, []string{"README.md", "src/[literal]*.go", "never-tracked.txt"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"README.md", "src/[literal]*.go"}, staged)

	require.NoError(t, repo.Commit(ctx, "auto commit test", staged))
	assert.Equal(t, 2, gittest.CommitCount(t, dir))
	assert.Equal(t, "auto commit test", gittest.LastMessage(t, dir))
	assert.ElementsMatch(t, []string{"README.md", "src/[literal]*.go"}, gittest.FilesInHead(t, dir))

	err = repo.Commit(ctx, "empty", nil)
	assert.Equal(t, gitwatchErrors.KindNothingToCommit, gitwatchErrors.Classify(err))
}

func TestRepositoryUnstage(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	ctx := context.Background()
	repo := NewRepository(dir, nil, 0)

	gittest.WriteFile(t, dir, "a.txt", "a\n")
	require.NoError(t, repo.Add(ctx, []string{"a.txt"}))
	require.NoError(t, repo.Unstage(ctx, []string{"a.txt"}))

	staged, err := repo.StagedPaths(ctx, []string{"a.txt"})
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestRepositoryStagedPathsRelativeToSubdirectory(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "docs/guide.md", "guide\n")
	gittest.WriteFile(t, dir, "other.txt", "other\n")
	gittest.Git(t, dir, "add", "docs/guide.md", "other.txt")

	repo := NewRepository(filepath.Join(dir, "docs"), nil, 0)
	staged, err := repo.StagedPaths(ctx, []string{"guide.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{"guide.md"}, staged)

	require.NoError(t, repo.Commit(ctx, "docs only", staged))
	assert.Equal(t, []string{"docs/guide.md"}, gittest.FilesInHead(t, dir))
	assert.Equal(t, "A  other.txt", gittest.Git(t, dir, "status", "--porcelain"))
}

func TestRepositoryIgnored(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	ctx := context.Background()
	repo := NewRepository(dir, nil, 0)

	gittest.WriteFile(t, dir, "a.txt", "a\n")
	ignored, err := repo.Ignored(ctx, []string{"a.txt", "README.md"})
	require.NoError(t, err)
	assert.Empty(t, ignored)

	gittest.WriteFile(t, dir, ".git/info/exclude", "*.swp\nREADME.md\n")
	gittest.WriteFile(t, dir, ".a.txt.swp", "swap")
	ignored, err = repo.Ignored(ctx, []string{".a.txt.swp", "a.txt", "README.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{".a.txt.swp"}, ignored, "tracked paths are never reported")
}

func TestRepositoryIgnoredFailsOutsideRepository(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	_, err := NewRepository(t.TempDir(), nil, 0).Ignored(context.Background(), []string{"a.txt"})
	require.Error(t, err)
	assert.Equal(t, gitwatchErrors.KindNoRepository, gitwatchErrors.Classify(err))
}

func TestRepositoryDetachedHead(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	gittest.Git(t, dir, "checkout", "-q", "--detach")

	branch, err := NewRepository(dir, nil, 0).CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, branch)
}

func TestIsRepository(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)

	isRepo, err := IsRepository(dir)
	require.NoError(t, err)
	assert.True(t, isRepo)

	isRepo, err = IsRepository(t.TempDir())
	require.NoError(t, err)
	assert.False(t, isRepo)
}

func TestExecExecutorReportsOutput(t *testing.T) {
	t.Parallel()

	dir := gittest.NewRepo(t)
	_, err := NewExecExecutor().ExecuteWithContextAndOutput(context.Background(), "git", "-C", dir, "checkout", "no-such-branch")
	require.Error(t, err)

	var gitErr *gitwatchErrors.GitError
	require.True(t, gitwatchErrors.As(err, &gitErr))
	assert.Equal(t, "checkout", gitErr.Operation)
	assert.True(t, strings.Contains(gitErr.Output, "no-such-branch"))
	assert.True(t, gitwatchErrors.Is(err, gitwatchErrors.ErrCommandFailed))
}
