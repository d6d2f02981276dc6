// Package gittest creates throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// NewRepo initializes a repository on branch main with one commit and
// returns its path. The test is skipped when git is not installed.
func NewRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	dir := t.TempDir()
	Git(t, dir, "init", "-q")
	Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "Test User")
	Git(t, dir, "config", "commit.gpgsign", "false")

	WriteFile(t, dir, "README.md", "# test\n")
	Git(t, dir, "add", "README.md")
	Git(t, dir, "commit", "-q", "-m", "initial commit")

	return dir
}

// Git runs git in dir and returns trimmed stdout, failing the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()

	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// CommitCount returns the number of commits reachable from HEAD.
func CommitCount(t *testing.T, dir string) int {
	t.Helper()

	n, err := strconv.Atoi(Git(t, dir, "rev-list", "--count", "HEAD"))
	if err != nil {
		t.Fatalf("Failed to parse commit count: %v", err)
	}
	return n
}

// LastMessage returns the subject of the HEAD commit.
func LastMessage(t *testing.T, dir string) string {
	t.Helper()
	return Git(t, dir, "log", "-1", "--pretty=%s")
}

// FilesInHead lists the files changed by the HEAD commit.
func FilesInHead(t *testing.T, dir string) []string {
	t.Helper()

	out := Git(t, dir, "show", "--name-only", "--pretty=format:", "HEAD")
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}
