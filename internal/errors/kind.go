package errors

// Kind classifies the result of a flush attempt.
type Kind int

const (
	KindNone Kind = iota
	KindNoRepository
	KindNothingToCommit
	KindCommandFailed
	KindPushFailed
	KindBranchDisallowed
	KindWatch
)

var kindNames = map[Kind]string{
	KindNone:             "none",
	KindNoRepository:     "no_repository",
	KindNothingToCommit:  "nothing_to_commit",
	KindCommandFailed:    "command_failed",
	KindPushFailed:       "push_failed",
	KindBranchDisallowed: "branch_disallowed",
	KindWatch:            "watch_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Benign reports whether the kind leaves nothing for the caller to retry.
func (k Kind) Benign() bool {
	return k == KindNone || k == KindNothingToCommit
}

// Classify maps an error chain onto a Kind. Unrecognized errors are
// treated as failed commands.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case Is(err, ErrNotGitRepository):
		return KindNoRepository
	case Is(err, ErrNothingToCommit):
		return KindNothingToCommit
	case Is(err, ErrBranchDisallowed):
		return KindBranchDisallowed
	case Is(err, ErrPushFailed):
		return KindPushFailed
	case Is(err, ErrWatchFailed):
		return KindWatch
	default:
		return KindCommandFailed
	}
}
