package git

import (
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Worktree describes the repository that contains a watched directory.
type Worktree struct {
	// Root is the absolute top-level directory of the work tree.
	Root string

	patterns []gitignore.Pattern
}

// Open locates the repository containing dir, searching parent directories
// the way git does. The .gitignore files of the work tree are read once.
func Open(dir string) (*Worktree, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, gitwatchErrors.Wrap(err, "failed to resolve directory")
	}

	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if gitwatchErrors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, gitwatchErrors.Wrapf(gitwatchErrors.ErrNotGitRepository, "%s", abs)
		}
		return nil, gitwatchErrors.Wrap(err, "failed to open repository")
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no work tree to commit from.
		return nil, gitwatchErrors.Wrapf(gitwatchErrors.ErrNotGitRepository, "%s: %v", abs, err)
	}

	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		return nil, gitwatchErrors.Wrap(err, "failed to read .gitignore patterns")
	}

	return &Worktree{Root: wt.Filesystem.Root(), patterns: patterns}, nil
}

// IgnoreMatcher returns a matcher for paths relative to dir, which must lie
// inside the work tree. It returns nil when no patterns were found.
func (w *Worktree) IgnoreMatcher(dir string) gitignore.Matcher {
	if len(w.patterns) == 0 {
		return nil
	}

	m := gitignore.NewMatcher(w.patterns)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return m
	}
	root, err := filepath.EvalSymlinks(w.Root)
	if err != nil {
		root = w.Root
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return m
	}
	return &prefixedMatcher{prefix: strings.Split(filepath.ToSlash(rel), "/"), m: m}
}

// prefixedMatcher rebases watch-relative paths onto the work tree root.
type prefixedMatcher struct {
	prefix []string
	m      gitignore.Matcher
}

func (p *prefixedMatcher) Match(path []string, isDir bool) bool {
	full := make([]string, 0, len(p.prefix)+len(path))
	full = append(full, p.prefix...)
	full = append(full, path...)
	return p.m.Match(full, isDir)
}
