package git

import (
	"context"
	"strings"
	"sync"
)

// MockCommandExecutor records every invocation and answers from ExecuteFn.
type MockCommandExecutor struct {
	mu        sync.Mutex
	Output    string
	Commands  [][]string
	ExecuteFn func(ctx context.Context, args []string) (string, error)
}

// NewMockCommandExecutor creates a new mock executor
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{}
}

// ExecuteWithContext implements the CommandExecutor interface
func (m *MockCommandExecutor) ExecuteWithContext(ctx context.Context, name string, args ...string) error {
	_, err := m.ExecuteWithContextAndOutput(ctx, name, args...)
	return err
}

// ExecuteWithContextAndOutput implements the CommandExecutor interface
func (m *MockCommandExecutor) ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, append([]string{name}, args...))
	fn := m.ExecuteFn
	out := m.Output
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, args)
	}
	return out, nil
}

// Joined returns each recorded command as a single space-separated string.
func (m *MockCommandExecutor) Joined() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		out[i] = strings.Join(c, " ")
	}
	return out
}
