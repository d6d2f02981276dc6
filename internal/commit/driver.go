// Package commit turns a batch of pending changes into a git commit.
package commit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bashhack/gitwatch/internal/change"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

// VCS is the subset of git operations the driver needs. *git.Repository
// satisfies it.
type VCS interface {
	Add(ctx context.Context, paths []string) error
	Remove(ctx context.Context, paths []string) error
	Ignored(ctx context.Context, paths []string) ([]string, error)
	StagedPaths(ctx context.Context, paths []string) ([]string, error)
	Commit(ctx context.Context, message string, paths []string) error
	Push(ctx context.Context) error
	Unstage(ctx context.Context, paths []string) error
}

// Policy controls commit size, message and publishing.
type Policy struct {
	MaxFilesPerCommit int
	MessageTemplate   string
	MaxMessageLength  int

	AutoPush    bool
	PushRetries int
	PushBackoff time.Duration
}

// Driver stages, commits and pushes batches. Flushes must not overlap; the
// aggregator guarantees that.
type Driver struct {
	policy Policy
	vcs    VCS
	logger logger.Logger
	root   string

	// ignored holds paths already reported as ignored by git.
	ignored map[string]bool

	now    func() time.Time
	exists func(rel string) bool
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the time source used for {timestamp}.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithRoot sets the directory paths are relative to. It is used to check
// whether a modified path still exists at flush time.
func WithRoot(root string) Option {
	return func(d *Driver) { d.root = root }
}

// WithExists overrides the existence check for relative paths.
func WithExists(exists func(rel string) bool) Option {
	return func(d *Driver) { d.exists = exists }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New returns a Driver for vcs.
func New(policy Policy, vcs VCS, opts ...Option) *Driver {
	if policy.MaxFilesPerCommit < 1 {
		policy.MaxFilesPerCommit = 1
	}
	if policy.PushBackoff <= 0 {
		policy.PushBackoff = 2 * time.Second
	}

	d := &Driver{
		policy: policy,
		vcs:    vcs,
		logger:  logger.NewNop(),
		ignored: make(map[string]bool),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.exists == nil {
		d.exists = d.statExists
	}
	return d
}

// Flush commits at most MaxFilesPerCommit of batch, lexicographically first
// by path, and returns the rest as remainder. An empty batch is a no-op.
// On failure before the commit the staged paths are unstaged again; the
// caller decides whether to retain the batch.
func (d *Driver) Flush(ctx context.Context, batch []change.Event, branch string) (Outcome, []change.Event) {
	if len(batch) == 0 {
		return Outcome{}, nil
	}

	events := append([]change.Event(nil), batch...)
	change.SortByPath(events)

	var remainder []change.Event
	if len(events) > d.policy.MaxFilesPerCommit {
		remainder = events[d.policy.MaxFilesPerCommit:]
		events = events[:d.policy.MaxFilesPerCommit]
	}

	message := Truncate(RenderMessage(d.policy.MessageTemplate, MessageData{
		Timestamp: d.now(),
		Events:    events,
		Branch:    branch,
	}), d.policy.MaxMessageLength)

	out := Outcome{
		FilesCount: len(events),
		Message:    message,
		Branch:     branch,
		Deferred:   len(remainder),
	}

	if err := d.commit(ctx, events, message); err != nil {
		out.Kind = gitwatchErrors.Classify(err)
		out.Err = err
		return out, remainder
	}
	out.Committed = true

	if !d.policy.AutoPush {
		return out, remainder
	}

	if err := d.push(ctx); err != nil {
		out.Kind = gitwatchErrors.KindPushFailed
		out.Err = err
		return out, remainder
	}
	out.Pushed = true

	return out, remainder
}

func (d *Driver) commit(ctx context.Context, events []change.Event, message string) error {
	// The filesystem at flush time decides between add and rm: a deleted path
	// may have been recreated, a modified one removed since.
	var adds, removes []string
	for _, ev := range events {
		if d.exists(ev.Path) {
			adds = append(adds, ev.Path)
		} else {
			removes = append(removes, ev.Path)
		}
	}

	staged := change.Paths(events)

	adds, err := d.dropIgnored(ctx, adds)
	if err != nil {
		return err
	}

	if err := d.vcs.Add(ctx, adds); err != nil {
		d.rollback(ctx, staged)
		return err
	}
	if err := d.vcs.Remove(ctx, removes); err != nil {
		d.rollback(ctx, staged)
		return err
	}

	changed, err := d.vcs.StagedPaths(ctx, staged)
	if err != nil {
		d.rollback(ctx, staged)
		return err
	}
	if len(changed) == 0 {
		return gitwatchErrors.Wrap(gitwatchErrors.ErrNothingToCommit, "staged content matches HEAD")
	}

	if err := d.vcs.Commit(ctx, message, changed); err != nil {
		if gitwatchErrors.Classify(err) != gitwatchErrors.KindNothingToCommit {
			d.rollback(ctx, staged)
		}
		return err
	}
	return nil
}

// dropIgnored removes the paths git refuses to add. Each ignored path is
// logged the first time it is seen.
func (d *Driver) dropIgnored(ctx context.Context, adds []string) ([]string, error) {
	if len(adds) == 0 {
		return adds, nil
	}

	ignored, err := d.vcs.Ignored(ctx, adds)
	if err != nil || len(ignored) == 0 {
		return adds, err
	}

	skip := make(map[string]bool, len(ignored))
	for _, p := range ignored {
		skip[p] = true
		if !d.ignored[p] {
			d.ignored[p] = true
			d.logger.Info("Skipping %s: ignored by git", p)
		}
	}

	kept := adds[:0:0]
	for _, p := range adds {
		if !skip[p] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// rollback unstages paths so a failed flush leaves no partial index state.
func (d *Driver) rollback(ctx context.Context, paths []string) {
	if err := d.vcs.Unstage(ctx, paths); err != nil {
		d.logger.Warning("Failed to unstage %d paths after error: %v", len(paths), err)
	}
}

func (d *Driver) push(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= d.policy.PushRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * d.policy.PushBackoff
			d.logger.Info("Retrying push in %s (attempt %d of %d)", wait, attempt+1, d.policy.PushRetries+1)
			if sleepErr := d.sleep(ctx, wait); sleepErr != nil {
				return fmt.Errorf("%w: %w", gitwatchErrors.ErrPushFailed, sleepErr)
			}
		}
		if err = d.vcs.Push(ctx); err == nil {
			return nil
		}
		d.logger.Warning("Push attempt %d failed: %v", attempt+1, err)
	}
	if !gitwatchErrors.Is(err, gitwatchErrors.ErrPushFailed) {
		err = fmt.Errorf("%w: %w", gitwatchErrors.ErrPushFailed, err)
	}
	return err
}

func (d *Driver) statExists(rel string) bool {
	_, err := os.Lstat(filepath.Join(d.root, filepath.FromSlash(rel)))
	return err == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
