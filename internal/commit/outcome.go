package commit

import (
	"fmt"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Outcome is the result of one flush attempt. Kind is KindNone on success.
// A failed push leaves Committed true; the commit is never undone.
type Outcome struct {
	Committed  bool
	Pushed     bool
	Kind       gitwatchErrors.Kind
	Err        error
	FilesCount int
	Message    string
	Branch     string

	// Deferred counts paths held back by the per-commit file limit.
	Deferred int
}

// Empty reports whether the flush had nothing to do.
func (o Outcome) Empty() bool {
	return o.FilesCount == 0 && o.Kind == gitwatchErrors.KindNone
}

// String renders the single status line reported for a flush.
func (o Outcome) String() string {
	var s string
	switch {
	case o.Empty():
		return "no pending changes"
	case o.Committed && o.Pushed:
		s = fmt.Sprintf("committed and pushed %d file(s): %s", o.FilesCount, o.Message)
	case o.Committed && o.Kind == gitwatchErrors.KindPushFailed:
		s = fmt.Sprintf("committed %d file(s) but push failed: %v", o.FilesCount, o.Err)
	case o.Committed:
		s = fmt.Sprintf("committed %d file(s): %s", o.FilesCount, o.Message)
	case o.Kind == gitwatchErrors.KindNothingToCommit:
		s = fmt.Sprintf("nothing to commit for %d changed path(s)", o.FilesCount)
	case o.Kind == gitwatchErrors.KindBranchDisallowed:
		s = fmt.Sprintf("skipped commit of %d file(s): %v", o.FilesCount, o.Err)
	default:
		s = fmt.Sprintf("commit of %d file(s) failed (%s): %v", o.FilesCount, o.Kind, o.Err)
	}
	if o.Deferred > 0 {
		s = fmt.Sprintf("%s (%d deferred)", s, o.Deferred)
	}
	return s
}
