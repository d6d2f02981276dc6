package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// CommandExecutor runs external commands. It exists so tests can replace the
// git binary with a recording fake.
type CommandExecutor interface {
	// ExecuteWithContext runs name with args and discards its output.
	ExecuteWithContext(ctx context.Context, name string, args ...string) error

	// ExecuteWithContextAndOutput runs name with args and returns its stdout.
	ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error)
}

// ExecExecutor is the default implementation of CommandExecutor
// that delegates to the os/exec package
type ExecExecutor struct {
	// Env is appended to the inherited environment of every command.
	Env []string
}

// NewExecExecutor creates a new ExecExecutor
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// ExecuteWithContext implements CommandExecutor.ExecuteWithContext
func (e *ExecExecutor) ExecuteWithContext(ctx context.Context, name string, args ...string) error {
	_, err := e.ExecuteWithContextAndOutput(ctx, name, args...)
	return err
}

// ExecuteWithContextAndOutput implements CommandExecutor.ExecuteWithContextAndOutput.
// On failure the returned *GitError carries stderr followed by stdout, since
// git reports some conditions (e.g. "nothing to commit") on stdout.
func (e *ExecExecutor) ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		output := strings.TrimSpace(strings.TrimSpace(stderr.String()) + "\n" + strings.TrimSpace(stdout.String()))
		return "", gitwatchErrors.NewGitError(operationOf(args), args,
			fmt.Errorf("%w: %w", gitwatchErrors.ErrCommandFailed, err), output)
	}

	return stdout.String(), nil
}

// operationOf returns the git subcommand in args, skipping global options.
func operationOf(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-C" || a == "-c" {
			i++
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		return a
	}
	return ""
}
