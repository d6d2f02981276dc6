package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/kr/pretty"

	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/lock"
	"github.com/bashhack/gitwatch/internal/logger"
	"github.com/bashhack/gitwatch/internal/session"
)

// Runner watches and commits until its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
	PrintSummary()
}

// Locker manages file locking
type Locker interface {
	Acquire() error
	Release() error
}

// AppOptions contains app configuration and dependencies.
// Nil optional fields are replaced by the production implementations.
type AppOptions struct {
	// Config holds the loaded configuration (required).
	Config *config.Config

	// Optional components

	// Logger provides logging for both the debug log and the terminal.
	Logger logger.Logger

	// Locker prevents two gitwatch instances on one directory.
	Locker Locker

	// NewRunner builds the watch session once prerequisites are verified.
	NewRunner func(cfg *config.Config, log logger.Logger) (Runner, error)

	// I/O dependencies

	Stdout io.Writer
	Stderr io.Writer

	// System dependencies

	// ExecLookPath is used to find the git executable (defaults to exec.LookPath).
	ExecLookPath func(file string) (string, error)

	// IsRepository checks the watch directory (defaults to git.IsRepository).
	IsRepository func(string) (bool, error)
}

// App is the gitwatch application: it verifies the environment, takes the
// directory lock and runs a watch session.
type App struct {
	Config *config.Config
	Logger logger.Logger
	Locker Locker
	Runner Runner

	Stdout io.Writer
	Stderr io.Writer

	newRunner    func(cfg *config.Config, log logger.Logger) (Runner, error)
	execLookPath func(file string) (string, error)
	isRepository func(string) (bool, error)
}

// NewApp creates an App with custom dependencies specified in opts.
// It panics if opts.Config is nil.
func NewApp(opts AppOptions) *App {
	if opts.Config == nil {
		panic("Config is required in AppOptions")
	}

	app := &App{
		Config:       opts.Config,
		Logger:       opts.Logger,
		Locker:       opts.Locker,
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
		newRunner:    opts.NewRunner,
		execLookPath: opts.ExecLookPath,
		isRepository: opts.IsRepository,
	}

	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.execLookPath == nil {
		app.execLookPath = exec.LookPath
	}
	if app.isRepository == nil {
		app.isRepository = git.IsRepository
	}
	if app.newRunner == nil {
		app.newRunner = newSessionRunner
	}

	return app
}

func newSessionRunner(cfg *config.Config, log logger.Logger) (Runner, error) {
	return session.New(cfg, log, session.Options{})
}

// Initialize sets up components not provided during construction
func (a *App) Initialize() error {
	if err := a.Config.Finalize(); err != nil {
		if gitwatchErrors.Is(err, gitwatchErrors.ErrInvalidConfiguration) {
			return err
		}
		return gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, err.Error())
	}

	if a.Logger == nil {
		a.Logger = logger.NewWithOutput(a.Config.Debug, a.Config.LogFile, a.Config.Verbose, a.Stdout, a.Stderr)
	}
	if a.Config.Debug {
		a.Logger.Info("Configuration: %s", pretty.Sprint(a.Config))
	}

	if a.Locker == nil {
		locker, err := lock.New(a.Config.WatchDir)
		if err != nil {
			return gitwatchErrors.Wrap(err, "failed to initialize lock")
		}
		a.Locker = locker
	}

	return nil
}

// Run verifies prerequisites, takes the lock and watches until ctx is
// cancelled. The caller is responsible for Close.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(); err != nil {
		return err
	}

	if a.Config.Created {
		a.Logger.InfoToUser("Created default configuration at %s", a.Config.Path)
	}

	if err := a.checkRequiredCommands(); err != nil {
		return err
	}

	isRepo, err := a.isRepository(a.Config.WatchDir)
	if err != nil {
		a.Logger.Warning("Failed to check if path is a git repository: %v", err)
		return gitwatchErrors.Wrap(gitwatchErrors.ErrCommandFailed, err.Error())
	}
	if !isRepo {
		return gitwatchErrors.Wrapf(gitwatchErrors.ErrNotGitRepository, "%s", a.Config.WatchDir)
	}
	a.Logger.Info("Git repository verified")

	if err := a.Locker.Acquire(); err != nil {
		if gitwatchErrors.Is(err, gitwatchErrors.ErrAlreadyRunning) ||
			gitwatchErrors.Is(err, gitwatchErrors.ErrLockAcquisitionFailure) {
			return err
		}
		return gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure, err.Error())
	}

	runner, err := a.newRunner(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Runner = runner

	return a.Runner.Run(ctx)
}

// PrintSummary reports the session if one was started.
func (a *App) PrintSummary() {
	if a.Runner != nil {
		a.Runner.PrintSummary()
	}
}

// checkRequiredCommands verifies git is available in PATH
func (a *App) checkRequiredCommands() error {
	if _, err := a.execLookPath("git"); err != nil {
		return gitwatchErrors.ErrGitNotFound
	}
	return nil
}

// Close releases resources held by the App
func (a *App) Close() error {
	var errs []error

	if a.Locker != nil {
		if err := a.Locker.Release(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("Failed to release lock during cleanup: %v", err)
			} else {
				_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to release lock during cleanup: %v\n", err)
			}
			errs = append(errs, err)
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to close logger: %v\n", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return gitwatchErrors.Join(errs...)
	}
	return nil
}
