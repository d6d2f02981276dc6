package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

func execute(t *testing.T, base AppOptions, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(config.VersionInfo{Version: "v0.1.0", Commit: "abc", Date: "today"}, base)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, AppOptions{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "gitwatch v0.1.0 (abc) built on today\n", out)
}

func TestInitCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gitwatch.yaml")

	out, err := execute(t, AppOptions{}, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg.File)

	_, err = execute(t, AppOptions{}, "init", path)
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCodeOf(err))

	_, err = execute(t, AppOptions{}, "init", path, "--force")
	require.NoError(t, err)
}

func TestUnknownFlagIsConfigError(t *testing.T) {
	t.Parallel()

	_, err := execute(t, AppOptions{}, "start", "--no-such-flag")
	require.Error(t, err)
	assert.True(t, gitwatchErrors.Is(err, gitwatchErrors.ErrInvalidFlag))
	assert.Equal(t, exitConfig, exitCodeOf(err))
}

func TestStartCommandRunsSession(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gitwatch.json")
	runner := &MockRunner{}
	locker := &MockLocker{}

	var seen *config.Config
	base := AppOptions{
		Logger: logger.NewNop(),
		Locker: locker,
		NewRunner: func(cfg *config.Config, _ logger.Logger) (Runner, error) {
			seen = cfg
			return runner, nil
		},
		ExecLookPath: func(string) (string, error) { return "/usr/bin/git", nil },
		IsRepository: func(string) (bool, error) { return true, nil },
	}

	logFile := filepath.Join(t.TempDir(), "debug.log")
	_, err := execute(t, base, "start", path, "--quiet", "--log-file", logFile)
	require.NoError(t, err)

	assert.FileExists(t, path)
	require.NotNil(t, seen)
	assert.False(t, seen.Verbose)
	assert.Equal(t, logFile, seen.LogFile)
	assert.Equal(t, "v0.1.0", seen.VersionInfo.Version)

	assert.Equal(t, 1, runner.RunCalls)
	assert.Equal(t, 1, runner.SummaryCalls)
	assert.Equal(t, 1, locker.ReleaseCalls)
}

func TestStartCommandPropagatesFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gitwatch.json")
	base := AppOptions{
		Logger:       logger.NewNop(),
		Locker:       &MockLocker{},
		ExecLookPath: func(string) (string, error) { return "", errors.New("missing") },
	}

	_, err := execute(t, base, "start", path)
	require.Error(t, err)
	assert.Equal(t, exitEnvironment, exitCodeOf(err))
}

func TestStartCommandRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gitwatch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_files_per_commit": 0}`), 0o644))

	_, err := execute(t, AppOptions{}, "start", path)
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCodeOf(err))
}
