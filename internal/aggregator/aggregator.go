// Package aggregator coalesces file change events into debounced flushes.
//
// A single goroutine owns the pending batch. Every eligible event restarts
// the quiet-period timer; when it expires the batch is swapped for an empty
// one and handed to the flush procedure on another goroutine, so new events
// keep accumulating while git runs. At most one flush is in flight.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bashhack/gitwatch/internal/change"
	"github.com/bashhack/gitwatch/internal/commit"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

// DefaultShutdownTimeout bounds the final flush when the context is cancelled.
const DefaultShutdownTimeout = 60 * time.Second

// Eligibility filters event paths. *filter.Matcher satisfies it.
type Eligibility interface {
	IsEligible(path string) bool
}

// BranchGuard gates commits on the current branch. *guard.Guard satisfies it.
type BranchGuard interface {
	IsBranchAllowed(ctx context.Context) (bool, string, error)
}

// Flusher commits a batch. *commit.Driver satisfies it.
type Flusher interface {
	Flush(ctx context.Context, batch []change.Event, branch string) (commit.Outcome, []change.Event)
}

// Config holds the aggregator settings.
type Config struct {
	// CommitDelay is the quiet period after the last eligible event.
	CommitDelay time.Duration

	// FlushOnExit commits whatever is pending when the context is cancelled.
	// When false pending changes are discarded and logged.
	FlushOnExit bool

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// Stats summarizes the flushes of one session.
type Stats struct {
	Flushes         int
	Commits         int
	Pushes          int
	FilesCommitted  int
	NothingToCommit int
	Skipped         int
	Failures        int
	PushFailures    int
}

type flushResult struct {
	id        string
	outcome   commit.Outcome
	batch     []change.Event
	remainder []change.Event
}

// Aggregator implements the Idle/Pending debounce state machine.
type Aggregator struct {
	cfg     Config
	filter  Eligibility
	guard   BranchGuard
	flusher Flusher
	logger  logger.Logger
	timer   Timer
	newID   func() string
	observe func(commit.Outcome)

	// Owned by the Run goroutine.
	pending     *change.Batch
	inFlight    bool
	flushQueued bool
	results     chan flushResult

	mu    sync.Mutex
	stats Stats
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimer replaces the debounce timer.
func WithTimer(t Timer) Option {
	return func(a *Aggregator) { a.timer = t }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithObserver registers fn to be called from the Run goroutine after every
// completed flush attempt.
func WithObserver(fn func(commit.Outcome)) Option {
	return func(a *Aggregator) { a.observe = fn }
}

// New returns an Aggregator. The guard may be nil, meaning every branch is
// allowed.
func New(cfg Config, filter Eligibility, guard BranchGuard, flusher Flusher, opts ...Option) *Aggregator {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	a := &Aggregator{
		cfg:     cfg,
		filter:  filter,
		guard:   guard,
		flusher: flusher,
		logger:  logger.NewNop(),
		newID:   func() string { return uuid.NewString() },
		observe: func(commit.Outcome) {},
		pending: change.NewBatch(),
		results: make(chan flushResult, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.timer == nil {
		a.timer = NewTimer()
	}
	return a
}

// Run consumes events until ctx is cancelled. It returns nil after a clean
// shutdown and an error wrapping ErrNotGitRepository if the repository
// disappears. A closed events channel stops intake but not the loop.
func (a *Aggregator) Run(ctx context.Context, events <-chan change.Event) error {
	defer a.timer.Cancel()

	for {
		select {
		case <-ctx.Done():
			a.drain(events)
			return a.shutdown()

		case ev, ok := <-events:
			if !ok {
				a.logger.Info("Event stream closed; no further changes will be observed")
				events = nil
				continue
			}
			a.accept(ev)

		case <-a.timer.C():
			a.onTimer(ctx)

		case res := <-a.results:
			if err := a.complete(ctx, res); err != nil {
				return err
			}
		}
	}
}

// Stats returns a snapshot of the session counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Aggregator) accept(ev change.Event) {
	if !a.filter.IsEligible(ev.Path) {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	a.pending.Add(ev)
	a.timer.Arm(a.cfg.CommitDelay)
}

// drain accepts events already buffered in the stream so the exit flush
// sees them.
func (a *Aggregator) drain(events <-chan change.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.accept(ev)
		default:
			return
		}
	}
}

func (a *Aggregator) onTimer(ctx context.Context) {
	if a.pending.Empty() {
		return
	}
	if a.inFlight {
		a.flushQueued = true
		return
	}
	a.start(ctx)
}

func (a *Aggregator) start(ctx context.Context) {
	batch := a.pending.Sorted()
	a.pending = change.NewBatch()
	a.inFlight = true
	a.timer.Cancel()

	id := a.newID()
	// The flush must not be interrupted between staging and committing, so
	// it ignores cancellation and relies on per-command timeouts instead.
	fctx := context.WithoutCancel(ctx)
	go func() {
		a.results <- a.flush(fctx, id, batch)
	}()
}

func (a *Aggregator) flush(ctx context.Context, id string, batch []change.Event) flushResult {
	a.logger.Info("flush %s: %d pending path(s)", id, len(batch))

	branch := ""
	if a.guard != nil {
		allowed, b, err := a.guard.IsBranchAllowed(ctx)
		if !allowed {
			kind := gitwatchErrors.Classify(err)
			if kind == gitwatchErrors.KindCommandFailed || kind == gitwatchErrors.KindNone {
				kind = gitwatchErrors.KindBranchDisallowed
			}
			return flushResult{
				id:    id,
				batch: batch,
				outcome: commit.Outcome{
					Kind:       kind,
					Err:        err,
					FilesCount: len(batch),
					Branch:     b,
				},
			}
		}
		branch = b
	}

	out, rest := a.flusher.Flush(ctx, batch, branch)
	return flushResult{id: id, outcome: out, batch: batch, remainder: rest}
}

// complete applies the retention policy for a finished flush.
func (a *Aggregator) complete(ctx context.Context, res flushResult) error {
	a.inFlight = false
	a.record(res)

	switch res.outcome.Kind {
	case gitwatchErrors.KindNoRepository:
		if gitwatchErrors.Is(res.outcome.Err, gitwatchErrors.ErrNotGitRepository) {
			return res.outcome.Err
		}
		return gitwatchErrors.Wrapf(gitwatchErrors.ErrNotGitRepository, "%v", res.outcome.Err)

	case gitwatchErrors.KindBranchDisallowed, gitwatchErrors.KindCommandFailed:
		// Keep everything; the next event (or a queued flush) retries.
		a.pending.Merge(res.batch)

	default:
		if len(res.remainder) > 0 {
			a.pending.Merge(res.remainder)
			a.timer.Arm(a.cfg.CommitDelay)
		}
	}

	if a.flushQueued {
		a.flushQueued = false
		if !a.pending.Empty() {
			a.start(ctx)
		}
	}
	return nil
}

func (a *Aggregator) record(res flushResult) {
	out := res.outcome

	a.mu.Lock()
	a.stats.Flushes++
	if out.Committed {
		a.stats.Commits++
		a.stats.FilesCommitted += out.FilesCount
	}
	if out.Pushed {
		a.stats.Pushes++
	}
	switch out.Kind {
	case gitwatchErrors.KindNothingToCommit:
		a.stats.NothingToCommit++
	case gitwatchErrors.KindBranchDisallowed:
		a.stats.Skipped++
	case gitwatchErrors.KindPushFailed:
		a.stats.PushFailures++
	case gitwatchErrors.KindCommandFailed, gitwatchErrors.KindNoRepository:
		a.stats.Failures++
	}
	a.mu.Unlock()

	switch {
	case out.Committed && out.Kind == gitwatchErrors.KindNone:
		a.logger.Success("%s", out)
	case out.Kind == gitwatchErrors.KindNothingToCommit:
		a.logger.Info("flush %s: %s", res.id, out)
	case out.Kind == gitwatchErrors.KindNoRepository:
		a.logger.Error("%s", out)
	default:
		a.logger.WarningToUser("%s", out)
	}
	a.logger.Info("flush %s finished: kind=%s committed=%t pushed=%t", res.id, out.Kind, out.Committed, out.Pushed)

	a.observe(out)
}

// shutdown waits for an in-flight flush and then applies the exit policy to
// whatever is still pending.
func (a *Aggregator) shutdown() error {
	a.timer.Cancel()
	ctx := context.Background()

	if a.inFlight {
		a.logger.Info("Waiting for in-flight flush before exiting")
		a.flushQueued = false
		if err := a.complete(ctx, <-a.results); err != nil {
			return err
		}
		a.timer.Cancel()
	}

	if a.pending.Empty() {
		return nil
	}

	if !a.cfg.FlushOnExit {
		a.logger.WarningToUser("Discarding %d uncommitted change(s) on exit", a.pending.Len())
		return nil
	}

	a.logger.InfoToUser("Committing %d pending change(s) before exit", a.pending.Len())
	fctx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()

	for !a.pending.Empty() && fctx.Err() == nil {
		batch := a.pending.Sorted()
		a.pending = change.NewBatch()

		res := a.flush(fctx, a.newID(), batch)
		if err := a.complete(fctx, res); err != nil {
			return err
		}
		a.timer.Cancel()
		if len(res.remainder) == 0 || !res.outcome.Kind.Benign() && res.outcome.Kind != gitwatchErrors.KindPushFailed {
			break
		}
	}

	if !a.pending.Empty() {
		a.logger.WarningToUser("%d change(s) left uncommitted on exit", a.pending.Len())
	}
	return nil
}
