package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

type MockLocker struct {
	AcquireErr   error
	ReleaseErr   error
	AcquireCalls int
	ReleaseCalls int
}

func (m *MockLocker) Acquire() error {
	m.AcquireCalls++
	return m.AcquireErr
}

func (m *MockLocker) Release() error {
	m.ReleaseCalls++
	return m.ReleaseErr
}

type MockRunner struct {
	RunErr       error
	RunCalls     int
	SummaryCalls int
}

func (m *MockRunner) Run(ctx context.Context) error {
	m.RunCalls++
	return m.RunErr
}

func (m *MockRunner) PrintSummary() {
	m.SummaryCalls++
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "gitwatch.json"))
	require.NoError(t, err)
	cfg.LogFile = filepath.Join(t.TempDir(), "gitwatch.log")
	return cfg
}

type appFixture struct {
	app    *App
	locker *MockLocker
	runner *MockRunner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*AppOptions)) *appFixture {
	t.Helper()

	f := &appFixture{
		locker: &MockLocker{},
		runner: &MockRunner{},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	opts := AppOptions{
		Config: testConfig(t),
		Logger: logger.NewNop(),
		Locker: f.locker,
		NewRunner: func(*config.Config, logger.Logger) (Runner, error) {
			return f.runner, nil
		},
		Stdout:       f.stdout,
		Stderr:       f.stderr,
		ExecLookPath: func(string) (string, error) { return "/usr/bin/git", nil },
		IsRepository: func(string) (bool, error) { return true, nil },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.app = NewApp(opts)
	return f
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewApp(AppOptions{}) })
}

func TestNewAppDefaults(t *testing.T) {
	t.Parallel()

	app := NewApp(AppOptions{Config: testConfig(t)})
	assert.NotNil(t, app.Stdout)
	assert.NotNil(t, app.Stderr)
	assert.NotNil(t, app.execLookPath)
	assert.NotNil(t, app.isRepository)
	assert.NotNil(t, app.newRunner)
}

func TestAppRunScenarios(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate      func(*AppOptions)
		wantErr     error
		wantRun     int
		wantAcquire int
	}{
		"Success": {
			wantRun:     1,
			wantAcquire: 1,
		},
		"MissingGitCommand": {
			mutate: func(o *AppOptions) {
				o.ExecLookPath = func(string) (string, error) { return "", errors.New("not found") }
			},
			wantErr: gitwatchErrors.ErrGitNotFound,
		},
		"NotARepository": {
			mutate: func(o *AppOptions) {
				o.IsRepository = func(string) (bool, error) { return false, nil }
			},
			wantErr: gitwatchErrors.ErrNotGitRepository,
		},
		"RepositoryCheckFails": {
			mutate: func(o *AppOptions) {
				o.IsRepository = func(string) (bool, error) { return false, errors.New("permission denied") }
			},
			wantErr: gitwatchErrors.ErrCommandFailed,
		},
		"AlreadyRunning": {
			mutate: func(o *AppOptions) {
				o.Locker = &MockLocker{AcquireErr: gitwatchErrors.NewLockError("/tmp/x.lock", 42, gitwatchErrors.ErrAlreadyRunning)}
			},
			wantErr: gitwatchErrors.ErrAlreadyRunning,
		},
		"LockFailsOtherwise": {
			mutate: func(o *AppOptions) {
				o.Locker = &MockLocker{AcquireErr: errors.New("disk full")}
			},
			wantErr: gitwatchErrors.ErrLockAcquisitionFailure,
		},
		"WatcherFailsToStart": {
			mutate: func(o *AppOptions) {
				o.NewRunner = func(*config.Config, logger.Logger) (Runner, error) {
					return nil, gitwatchErrors.NewWatchError("/work", true, errors.New("too many open files"))
				}
			},
			wantErr:     gitwatchErrors.ErrWatchFailed,
			wantAcquire: 1,
		},
		"RunnerFails": {
			mutate: func(o *AppOptions) {
				o.NewRunner = func(*config.Config, logger.Logger) (Runner, error) {
					return &MockRunner{RunErr: gitwatchErrors.ErrNotGitRepository}, nil
				}
			},
			wantErr:     gitwatchErrors.ErrNotGitRepository,
			wantAcquire: 1,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tc.mutate)
			err := f.app.Run(context.Background())

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, gitwatchErrors.Is(err, tc.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantRun, f.runner.RunCalls)
			assert.Equal(t, tc.wantAcquire, f.locker.AcquireCalls)
		})
	}
}

func TestAppPrintSummaryOnlyAfterStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *AppOptions) {
		o.IsRepository = func(string) (bool, error) { return false, nil }
	})
	_ = f.app.Run(context.Background())
	f.app.PrintSummary()
	assert.Equal(t, 0, f.runner.SummaryCalls)

	f = newFixture(t, nil)
	require.NoError(t, f.app.Run(context.Background()))
	f.app.PrintSummary()
	assert.Equal(t, 1, f.runner.SummaryCalls)
}

func TestAppCloseScenarios(t *testing.T) {
	t.Parallel()

	t.Run("ReleasesLock", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		require.NoError(t, f.app.Close())
		assert.Equal(t, 1, f.locker.ReleaseCalls)
	})

	t.Run("ReportsReleaseFailure", func(t *testing.T) {
		t.Parallel()

		releaseErr := errors.New("release failed")
		f := newFixture(t, func(o *AppOptions) {
			o.Locker = &MockLocker{ReleaseErr: releaseErr}
			o.Logger = nil
		})
		err := f.app.Close()
		require.Error(t, err)
		assert.ErrorIs(t, err, releaseErr)
		assert.Contains(t, f.stderr.String(), "Failed to release lock")
	})

	t.Run("NothingToClose", func(t *testing.T) {
		t.Parallel()

		app := NewApp(AppOptions{Config: testConfig(t)})
		assert.NoError(t, app.Close())
	})
}

func TestExitCodeOf(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"Nil":          {nil, exitOK},
		"Config":       {gitwatchErrors.NewConfigError("commit_delay", -1, gitwatchErrors.ErrInvalidConfiguration), exitConfig},
		"Flag":         {gitwatchErrors.ErrInvalidFlag, exitConfig},
		"NoGit":        {gitwatchErrors.ErrGitNotFound, exitEnvironment},
		"NotRepo":      {gitwatchErrors.Wrap(gitwatchErrors.ErrNotGitRepository, "/x"), exitEnvironment},
		"Locked":       {gitwatchErrors.NewLockError("/x.lock", 1, gitwatchErrors.ErrAlreadyRunning), exitLocked},
		"WatchFailure": {gitwatchErrors.NewWatchError("/x", true, errors.New("boom")), exitWatch},
		"Other":        {errors.New("boom"), exitFailure},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, exitCodeOf(tc.err))
		})
	}
}
