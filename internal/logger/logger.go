package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the common logging interface used throughout the application.
// File-only methods (Info, Warning, Error) feed the debug log; the user-facing
// methods (InfoToUser, WarningToUser, Success, StatusMessage) also print to the
// terminal.
type Logger interface {
	// Info logs an informational message to the debug log only.
	Info(format string, args ...interface{})

	// Warning logs a warning to the debug log. It is echoed to stdout in verbose mode.
	Warning(format string, args ...interface{})

	// Error logs an error to the debug log and always prints it to stderr.
	Error(format string, args ...interface{})

	// InfoToUser logs an informational message and prints it to stdout.
	InfoToUser(format string, args ...interface{})

	// WarningToUser logs a warning and prints it to stdout.
	WarningToUser(format string, args ...interface{})

	// Success logs a success message and prints it to stdout.
	Success(format string, args ...interface{})

	// StatusMessage prints a status line to stdout without logging it.
	StatusMessage(format string, args ...interface{})

	// Close flushes buffered log entries and closes the log file.
	Close() error
}

// DefaultLogger writes structured JSON entries to a log file through zap and
// plain, prefixed lines to the terminal.
type DefaultLogger struct {
	mu      sync.Mutex
	sugar   *zap.SugaredLogger
	enabled bool
	logFile string
	verbose bool
	stdout  io.Writer
	stderr  io.Writer
	file    *os.File
}

// New creates a new Logger instance
func New(enabled bool, logFile string, verbose bool) Logger {
	return NewWithOutput(enabled, logFile, verbose, os.Stdout, os.Stderr)
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *DefaultLogger {
	return NewWithOutput(false, "", false, io.Discard, io.Discard)
}

// NewWithOutput creates a DefaultLogger with custom output writers
func NewWithOutput(enabled bool, logFile string, verbose bool, stdout, stderr io.Writer) *DefaultLogger {
	l := &DefaultLogger{
		sugar:   zap.NewNop().Sugar(),
		enabled: enabled,
		logFile: logFile,
		verbose: verbose,
		stdout:  stdout,
		stderr:  stderr,
	}

	if !enabled {
		return l
	}

	logDir := filepath.Dir(logFile)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			_, _ = fmt.Fprintf(stderr, "⚠️ Failed to create log directory: %v\n", err)
		}
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "⚠️ Failed to open log file: %v, using stderr instead\n", err)
		l.sugar = newSugar(zapcore.AddSync(stderr))
		return l
	}

	l.file = f
	l.sugar = newSugar(zapcore.AddSync(f))
	_, _ = fmt.Fprintf(stdout, "🔍 Debug logging enabled. Logs will be written to: %s\n", logFile)
	l.sugar.Info("gitwatch debug logging started")

	return l
}

func newSugar(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(ws), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

// Info logs an informational message (file only)
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	l.sugar.Infof(format, args...)
}

// InfoToUser logs an informational message to both file and stdout
func (l *DefaultLogger) InfoToUser(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.enabled {
		l.sugar.Info(msg)
	}
	_, _ = fmt.Fprintf(l.stdout, "ℹ️  %s\n", msg)
}

// Success logs a success message to both file and stdout
func (l *DefaultLogger) Success(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.enabled {
		l.sugar.Info(msg)
	}
	_, _ = fmt.Fprintf(l.stdout, "✅ %s\n", msg)
}

// Warning logs a warning message
func (l *DefaultLogger) Warning(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.enabled {
		l.sugar.Warn(msg)
	}
	if l.verbose {
		_, _ = fmt.Fprintf(l.stdout, "⚠️  %s\n", msg)
	}
}

// WarningToUser logs a warning message to both file and stdout
func (l *DefaultLogger) WarningToUser(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.enabled {
		l.sugar.Warn(msg)
	}
	_, _ = fmt.Fprintf(l.stdout, "⚠️  %s\n", msg)
}

// Error logs an error message
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.enabled {
		l.sugar.Error(msg)
	}
	_, _ = fmt.Fprintf(l.stderr, "❌ %s\n", msg)
}

// StatusMessage prints a status message to stdout only (no logging)
func (l *DefaultLogger) StatusMessage(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintln(l.stdout, fmt.Sprintf(format, args...))
}

// Close flushes zap's buffers and closes the log file handle
func (l *DefaultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	// Sync on a closed or special file can fail harmlessly; the close result matters.
	_ = l.sugar.Sync()
	err := l.file.Close()
	l.file = nil
	l.sugar = zap.NewNop().Sugar()
	return err
}

// SetStdout sets a custom writer for user-facing stdout messages only.
func (l *DefaultLogger) SetStdout(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = w
}

// SetStderr sets a custom writer for user-facing stderr messages only.
func (l *DefaultLogger) SetStderr(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stderr = w
}
