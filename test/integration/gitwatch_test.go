//go:build integration

package integration

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashhack/gitwatch/internal/git/gittest"
)

func skipUnlessEnabled(t *testing.T) {
	t.Helper()
	if os.Getenv("GITWATCH_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set GITWATCH_INTEGRATION_TESTS=1 to run")
	}
}

// buildGitwatch compiles the binary once per test into a temp directory.
func buildGitwatch(t *testing.T) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "gitwatch")
	out, err := exec.Command("go", "build", "-o", bin, "../../cmd/gitwatch").CombinedOutput()
	require.NoError(t, err, "building gitwatch: %s", out)
	return bin
}

type process struct {
	cmd    *exec.Cmd
	output *bytes.Buffer
	done   chan error
}

func startGitwatch(t *testing.T, bin, configPath string) *process {
	t.Helper()

	p := &process{output: &bytes.Buffer{}, done: make(chan error, 1)}
	p.cmd = exec.Command(bin, "start", configPath)
	p.cmd.Stdout = p.output
	p.cmd.Stderr = p.output
	p.cmd.Env = append(os.Environ(), "GITWATCH_DEBUG=false")
	require.NoError(t, p.cmd.Start())

	go func() { p.done <- p.cmd.Wait() }()
	t.Cleanup(func() { _ = p.cmd.Process.Kill() })

	// Let the watcher register its directories.
	time.Sleep(500 * time.Millisecond)
	return p
}

func (p *process) interrupt(t *testing.T) int {
	t.Helper()

	require.NoError(t, p.cmd.Process.Signal(syscall.SIGINT))
	select {
	case err := <-p.done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		require.NoError(t, err)
		return 0
	case <-time.After(30 * time.Second):
		t.Fatalf("gitwatch did not exit after SIGINT; output:\n%s", p.output)
		return -1
	}
}

func writeConfig(t *testing.T, repo, content string) string {
	t.Helper()
	gittest.WriteFile(t, repo, ".gitwatch.json", content)
	return filepath.Join(repo, ".gitwatch.json")
}

func TestBurstOfEditsBecomesOneCommit(t *testing.T) {
	skipUnlessEnabled(t)

	repo := gittest.NewRepo(t)
	bin := buildGitwatch(t)
	cfg := writeConfig(t, repo, `{
		"commit_delay": 2,
		"auto_push": false,
		"exclude_patterns": [".gitwatch.json"],
		"commit_message_template": "auto: {files_count} files"
	}`)

	p := startGitwatch(t, bin, cfg)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		gittest.WriteFile(t, repo, name, name)
		time.Sleep(300 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return gittest.CommitCount(t, repo) == 2 }, 15*time.Second, 100*time.Millisecond)
	time.Sleep(3 * time.Second)
	assert.Equal(t, 2, gittest.CommitCount(t, repo), "expected a single commit for the burst")
	assert.Equal(t, "auto: 3 files", gittest.LastMessage(t, repo))
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, gittest.FilesInHead(t, repo))

	assert.Equal(t, 0, p.interrupt(t))
	assert.Contains(t, p.output.String(), "gitwatch Session Summary")
}

func TestPendingChangesAreCommittedOnInterrupt(t *testing.T) {
	skipUnlessEnabled(t)

	repo := gittest.NewRepo(t)
	bin := buildGitwatch(t)
	cfg := writeConfig(t, repo, `{
		"commit_delay": 600,
		"auto_push": false,
		"exclude_patterns": [".gitwatch.json"]
	}`)

	p := startGitwatch(t, bin, cfg)
	gittest.WriteFile(t, repo, "src/late.go", "package src\n")
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, 0, p.interrupt(t))
	assert.Equal(t, 2, gittest.CommitCount(t, repo))
	assert.Equal(t, []string{"src/late.go"}, gittest.FilesInHead(t, repo))
}

func TestNonRepositoryExitsWithError(t *testing.T) {
	skipUnlessEnabled(t)

	bin := buildGitwatch(t)
	dir := t.TempDir()

	out, err := exec.Command(bin, "start", filepath.Join(dir, "gitwatch.json")).CombinedOutput()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected a non-zero exit; output:\n%s", out)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.True(t, strings.Contains(string(out), "not a git repository"), string(out))
}

func TestSecondInstanceIsRejected(t *testing.T) {
	skipUnlessEnabled(t)

	repo := gittest.NewRepo(t)
	bin := buildGitwatch(t)
	cfg := writeConfig(t, repo, `{"auto_push": false, "exclude_patterns": [".gitwatch.json"]}`)

	p := startGitwatch(t, bin, cfg)

	out, err := exec.Command(bin, "start", cfg).CombinedOutput()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected a non-zero exit; output:\n%s", out)
	assert.Equal(t, 4, exitErr.ExitCode())

	assert.Equal(t, 0, p.interrupt(t))
}
