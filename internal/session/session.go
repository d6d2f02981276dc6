// Package session assembles the watcher, filter, branch guard, commit driver
// and aggregator for one watched directory and runs them until cancelled.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bashhack/gitwatch/internal/aggregator"
	"github.com/bashhack/gitwatch/internal/change"
	"github.com/bashhack/gitwatch/internal/commit"
	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/filter"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/guard"
	"github.com/bashhack/gitwatch/internal/logger"
	"github.com/bashhack/gitwatch/internal/watcher"
)

// Source produces change events until its context is cancelled.
// *watcher.Watcher satisfies it.
type Source interface {
	Run(ctx context.Context) error
	Events() <-chan change.Event
}

// Options carries optional collaborators, mostly for tests.
type Options struct {
	// Executor runs git. Defaults to git.NewExecExecutor().
	Executor git.CommandExecutor

	// Source replaces the filesystem watcher.
	Source Source

	// Timer replaces the debounce timer.
	Timer aggregator.Timer
}

// Session is one gitwatch run over a directory.
type Session struct {
	cfg        *config.Config
	logger     logger.Logger
	source     Source
	aggregator *aggregator.Aggregator

	mu       sync.Mutex
	started  time.Time
	finished time.Time
	branch   string
	last     commit.Outcome
}

// New validates the repository and builds every component. Failures here
// are fatal: a missing repository, malformed patterns, or a watcher that
// cannot start.
func New(cfg *config.Config, log logger.Logger, opts Options) (*Session, error) {
	if log == nil {
		log = logger.NewNop()
	}

	wt, err := git.Open(cfg.WatchDir)
	if err != nil {
		return nil, err
	}
	log.Info("Repository work tree at %s", wt.Root)

	var filterOpts []filter.Option
	if cfg.RespectGitignore {
		if m := wt.IgnoreMatcher(cfg.WatchDir); m != nil {
			filterOpts = append(filterOpts, filter.WithGitignore(m))
		}
	}
	matcher, err := filter.New(cfg.Filter(), filterOpts...)
	if err != nil {
		return nil, err
	}

	repo := git.NewRepository(cfg.WatchDir, opts.Executor, cfg.CommandTimeoutDuration())
	branchGuard := guard.New(cfg.Branches(), repo)
	driver := commit.New(cfg.Policy(), repo, commit.WithRoot(cfg.WatchDir), commit.WithLogger(log))

	s := &Session{
		cfg:    cfg,
		logger: log,
		source: opts.Source,
	}

	if s.source == nil {
		w, err := watcher.New(cfg.WatchDir, watcher.WithSkipDir(matcher.SkipDir), watcher.WithLogger(log))
		if err != nil {
			return nil, err
		}
		s.source = w
	}

	aggOpts := []aggregator.Option{
		aggregator.WithLogger(log),
		aggregator.WithObserver(s.observe),
	}
	if opts.Timer != nil {
		aggOpts = append(aggOpts, aggregator.WithTimer(opts.Timer))
	}
	s.aggregator = aggregator.New(cfg.Aggregation(), matcher, branchGuard, driver, aggOpts...)

	if b, err := repo.CurrentBranch(context.Background()); err == nil {
		s.branch = b
	}
	return s, nil
}

// Run watches and commits until ctx is cancelled. It returns nil after a
// clean shutdown and an error wrapping ErrNotGitRepository if the repository
// goes away underneath it.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.StatusMessage("🔄 gitwatch started at %s", s.started.Format("2006-01-02 15:04:05"))
	s.logger.StatusMessage("📂 Watching: %s", s.cfg.WatchDir)
	if s.branch != "" {
		s.logger.StatusMessage("🌿 Current branch: %s", s.branch)
	}
	s.logger.StatusMessage("⏱️  Commit delay: %ds", s.cfg.CommitDelay)

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- s.source.Run(watchCtx)
	}()

	err := s.aggregator.Run(ctx, s.source.Events())

	stopWatching()
	if werr := <-watchDone; werr != nil {
		s.logger.Warning("File watcher stopped with error: %v", werr)
	}

	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()

	if err != nil && !gitwatchErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stats returns the session counters.
func (s *Session) Stats() aggregator.Stats {
	return s.aggregator.Stats()
}

func (s *Session) observe(out commit.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = out
	if out.Branch != "" {
		s.branch = out.Branch
	}
}

// PrintSummary reports what the session did.
func (s *Session) PrintSummary() {
	s.mu.Lock()
	started, finished, branch, last := s.started, s.finished, s.branch, s.last
	s.mu.Unlock()

	if started.IsZero() {
		return
	}
	if finished.IsZero() {
		finished = time.Now()
	}
	stats := s.Stats()

	duration := finished.Sub(started)
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	s.logger.StatusMessage("")
	s.logger.StatusMessage("---------------------------------------------")
	s.logger.StatusMessage("📊 gitwatch Session Summary")
	s.logger.StatusMessage("---------------------------------------------")
	s.logger.StatusMessage("✅ Commits made: %d (%d file(s))", stats.Commits, stats.FilesCommitted)
	if s.cfg.AutoPush {
		s.logger.StatusMessage("⬆️  Pushes: %d (%d failed)", stats.Pushes, stats.PushFailures)
	}
	if stats.Skipped > 0 {
		s.logger.StatusMessage("🚧 Flushes skipped on disallowed branch: %d", stats.Skipped)
	}
	if stats.Failures > 0 {
		s.logger.StatusMessage("❌ Failed flushes: %d", stats.Failures)
	}
	s.logger.StatusMessage("⏱️  Session duration: %dh %dm %ds", hours, minutes, seconds)
	if branch != "" {
		s.logger.StatusMessage("🌿 Branch: %s", branch)
	}
	if !last.Empty() {
		s.logger.StatusMessage("📝 Last flush: %s", last)
	}
	s.logger.StatusMessage("---------------------------------------------")
	s.logger.StatusMessage("🛑 gitwatch terminated at %s", finished.Format("2006-01-02 15:04:05"))
}
