// Package guard enforces the branch allow-list before any commit is made.
package guard

import (
	"context"
	"path"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// BranchReader reports the currently checked-out branch. An empty name
// means HEAD is detached.
type BranchReader interface {
	CurrentBranch(ctx context.Context) (string, error)
}

// Policy controls whether auto-commits are restricted to certain branches.
// AllowedBranches entries match exactly or as path.Match globs ("release/*").
type Policy struct {
	Enabled         bool
	AllowedBranches []string
}

// Guard decides whether a flush may commit on the current branch.
type Guard struct {
	policy Policy
	reader BranchReader
}

// New returns a Guard that consults reader only when policy is enabled.
func New(policy Policy, reader BranchReader) *Guard {
	return &Guard{policy: policy, reader: reader}
}

// IsBranchAllowed reports whether committing is permitted right now, along
// with the branch that was checked. With the policy disabled it always
// allows and never queries git. A failed query or a detached HEAD is not
// allowed; the returned error describes why and wraps ErrBranchDisallowed.
func (g *Guard) IsBranchAllowed(ctx context.Context) (bool, string, error) {
	if !g.policy.Enabled {
		return true, "", nil
	}

	branch, err := g.reader.CurrentBranch(ctx)
	if err != nil {
		if gitwatchErrors.Classify(err) == gitwatchErrors.KindNoRepository {
			return false, "", err
		}
		return false, "", gitwatchErrors.Wrapf(gitwatchErrors.ErrBranchDisallowed,
			"cannot determine current branch: %v", err)
	}
	if branch == "" {
		return false, "", gitwatchErrors.Wrap(gitwatchErrors.ErrBranchDisallowed, "HEAD is detached")
	}

	if Matches(branch, g.policy.AllowedBranches) {
		return true, branch, nil
	}
	return false, branch, gitwatchErrors.Wrapf(gitwatchErrors.ErrBranchDisallowed, "branch %q", branch)
}

// Matches reports whether branch equals or glob-matches any of patterns.
func Matches(branch string, patterns []string) bool {
	for _, p := range patterns {
		if p == branch {
			return true
		}
		if ok, err := path.Match(p, branch); err == nil && ok {
			return true
		}
	}
	return false
}
