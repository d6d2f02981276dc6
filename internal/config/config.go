package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bashhack/gitwatch/internal/aggregator"
	"github.com/bashhack/gitwatch/internal/commit"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/filter"
	"github.com/bashhack/gitwatch/internal/guard"
)

const (
	// DefaultPath is the configuration file used when none is given.
	DefaultPath = "gitwatch.json"

	// DefaultWatchDirectory is resolved against the configuration file's directory.
	DefaultWatchDirectory = "."

	// DefaultCommitDelay is the quiet period, in seconds, after the last change
	// before a commit is made.
	DefaultCommitDelay = 5

	// DefaultMaxFilesPerCommit caps how many paths a single commit may carry.
	// Larger batches are split and the rest committed on the next flush.
	DefaultMaxFilesPerCommit = 10

	// DefaultCommitMessageTemplate renders as
	// "auto commit 2024-01-20 15:30:25 - 3 files".
	DefaultCommitMessageTemplate = "auto commit {timestamp} - {files_count} files"

	// DefaultMaxCommitMessageLength is measured in user-perceived characters.
	DefaultMaxCommitMessageLength = 100

	// DefaultPushRetries is the number of extra push attempts after a failure.
	DefaultPushRetries = 2

	// DefaultCommandTimeout bounds every git invocation, in seconds.
	DefaultCommandTimeout = 30

	// PushBackoff is the base delay between push attempts; attempt n waits n times this.
	PushBackoff = 2 * time.Second
)

// File is the on-disk configuration. Fields missing from the file keep
// their defaults; unknown fields are ignored.
type File struct {
	WatchDirectory         string   `json:"watch_directory" yaml:"watch_directory"`
	CommitDelay            int      `json:"commit_delay" yaml:"commit_delay" validate:"gte=0"`
	MaxFilesPerCommit      int      `json:"max_files_per_commit" yaml:"max_files_per_commit" validate:"min=1"`
	CommitMessageTemplate  string   `json:"commit_message_template" yaml:"commit_message_template"`
	ExcludePatterns        []string `json:"exclude_patterns" yaml:"exclude_patterns"`
	IncludePatterns        []string `json:"include_patterns" yaml:"include_patterns"`
	EnableBranchCheck      bool     `json:"enable_branch_check" yaml:"enable_branch_check"`
	AllowedBranches        []string `json:"allowed_branches" yaml:"allowed_branches"`
	MaxCommitMessageLength int      `json:"max_commit_message_length" yaml:"max_commit_message_length" validate:"min=1"`

	AutoPush         bool `json:"auto_push" yaml:"auto_push"`
	PushRetries      int  `json:"push_retries" yaml:"push_retries" validate:"gte=0"`
	CommandTimeout   int  `json:"command_timeout" yaml:"command_timeout" validate:"min=1"`
	FlushOnExit      bool `json:"flush_on_exit" yaml:"flush_on_exit"`
	RespectGitignore bool `json:"respect_gitignore" yaml:"respect_gitignore"`
}

// Defaults returns the configuration written for a fresh project.
func Defaults() File {
	return File{
		WatchDirectory:         DefaultWatchDirectory,
		CommitDelay:            DefaultCommitDelay,
		MaxFilesPerCommit:      DefaultMaxFilesPerCommit,
		CommitMessageTemplate:  DefaultCommitMessageTemplate,
		ExcludePatterns:        []string{},
		IncludePatterns:        []string{},
		EnableBranchCheck:      false,
		AllowedBranches:        []string{},
		MaxCommitMessageLength: DefaultMaxCommitMessageLength,
		AutoPush:               true,
		PushRetries:            DefaultPushRetries,
		CommandTimeout:         DefaultCommandTimeout,
		FlushOnExit:            true,
		RespectGitignore:       true,
	}
}

// Config is the immutable configuration of one gitwatch session: the loaded
// file plus runtime options taken from the environment and flags.
type Config struct {
	File

	// Path is the absolute path of the configuration file.
	Path string

	// Created reports that Path did not exist and defaults were written to it.
	Created bool

	// WatchDir is WatchDirectory resolved to an absolute path.
	WatchDir string

	// Runtime options

	// Debug enables the JSON debug log.
	Debug bool

	// LogFile is where debug logs go. Defaults to an XDG data path keyed by WatchDir.
	LogFile string

	// Verbose controls informational console output.
	Verbose bool

	VersionInfo VersionInfo
}

// VersionInfo contains build-time version metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// Load reads the configuration file at path. A missing file is replaced by
// the defaults, which are persisted so the user has something to edit.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, gitwatchErrors.NewConfigError("config_file", path, gitwatchErrors.Wrap(err, "failed to resolve absolute path"))
	}

	c := &Config{
		File:    Defaults(),
		Path:    abs,
		Verbose: true,
		VersionInfo: VersionInfo{
			Version: "dev",
			Commit:  "unknown",
			Date:    "unknown",
		},
	}

	data, err := os.ReadFile(abs)
	switch {
	case os.IsNotExist(err):
		if err := Save(abs, c.File); err != nil {
			return nil, err
		}
		c.Created = true
	case err != nil:
		return nil, gitwatchErrors.NewConfigError("config_file", abs, gitwatchErrors.Wrap(err, "cannot read configuration"))
	default:
		if err := decode(abs, data, &c.File); err != nil {
			return nil, err
		}
	}

	if err := Validate(c.File); err != nil {
		return nil, err
	}

	c.WatchDir = c.WatchDirectory
	if c.WatchDir == "" {
		c.WatchDir = DefaultWatchDirectory
	}
	if !filepath.IsAbs(c.WatchDir) {
		c.WatchDir = filepath.Join(filepath.Dir(abs), c.WatchDir)
	}
	c.WatchDir = filepath.Clean(c.WatchDir)

	return c, nil
}

// Save writes f to path, as YAML for .yaml/.yml and indented JSON otherwise.
func Save(path string, f File) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return gitwatchErrors.NewConfigError("config_file", path, gitwatchErrors.Wrap(err, "cannot encode configuration"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return gitwatchErrors.NewConfigError("config_file", path, gitwatchErrors.Wrap(err, "cannot create configuration directory"))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return gitwatchErrors.NewConfigError("config_file", path, gitwatchErrors.Wrap(err, "cannot write configuration"))
	}
	return nil
}

func decode(path string, data []byte, f *File) error {
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, f)
	} else {
		err = json.Unmarshal(data, f)
	}
	if err != nil {
		return gitwatchErrors.NewConfigError("config_file", path, gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, err.Error()))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the numeric bounds of f. The first violation is reported
// as a ConfigError naming the offending field.
func Validate(f File) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if gitwatchErrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return gitwatchErrors.NewConfigError(fe.Field(), fe.Value(),
			gitwatchErrors.Wrapf(gitwatchErrors.ErrInvalidConfiguration, "must satisfy %s", constraint(fe)))
	}
	return gitwatchErrors.NewConfigError("config_file", nil, gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, err.Error()))
}

func constraint(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte", "min":
		return ">= " + fe.Param()
	default:
		return fe.Tag() + " " + fe.Param()
	}
}

// LoadFromEnvironment applies the GITWATCH_* runtime options.
func (c *Config) LoadFromEnvironment() {
	c.Debug = getEnvBool("GITWATCH_DEBUG", c.Debug)
	c.LogFile = getEnvString("GITWATCH_LOG_FILE", c.LogFile)
	c.Verbose = getEnvBool("GITWATCH_VERBOSE", c.Verbose)
}

// Finalize fills in derived runtime options.
func (c *Config) Finalize() error {
	if c.LogFile == "" {
		// Follow XDG Base Directory Specification
		logDir := os.Getenv("XDG_DATA_HOME")
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				logDir = filepath.Join(homeDir, ".local", "share")
			} else {
				logDir = os.TempDir()
			}
		}

		dirHash := fmt.Sprintf("%x", sha256OfString(c.WatchDir)[:8])
		c.LogFile = filepath.Join(logDir, "gitwatch", "logs", fmt.Sprintf("gitwatch-%s.log", dirHash))
	}

	if c.Debug {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o700); err != nil {
			return gitwatchErrors.NewConfigError("log_file", c.LogFile, gitwatchErrors.Wrap(err, "cannot create log directory"))
		}
	}
	return nil
}

// Policy returns the commit settings.
func (c *Config) Policy() commit.Policy {
	return commit.Policy{
		MaxFilesPerCommit: c.MaxFilesPerCommit,
		MessageTemplate:   c.CommitMessageTemplate,
		MaxMessageLength:  c.MaxCommitMessageLength,
		AutoPush:          c.AutoPush,
		PushRetries:       c.PushRetries,
		PushBackoff:       PushBackoff,
	}
}

// Filter returns the path eligibility settings.
func (c *Config) Filter() filter.Config {
	return filter.Config{
		IncludePatterns: clone(c.IncludePatterns),
		ExcludePatterns: clone(c.ExcludePatterns),
	}
}

// Branches returns the branch policy.
func (c *Config) Branches() guard.Policy {
	return guard.Policy{
		Enabled:         c.EnableBranchCheck,
		AllowedBranches: clone(c.AllowedBranches),
	}
}

// Aggregation returns the debounce and shutdown settings.
func (c *Config) Aggregation() aggregator.Config {
	return aggregator.Config{
		CommitDelay:     time.Duration(c.CommitDelay) * time.Second,
		FlushOnExit:     c.FlushOnExit,
		ShutdownTimeout: aggregator.DefaultShutdownTimeout,
	}
}

// CommandTimeoutDuration is the per-invocation git timeout.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

// getEnvString returns an environment variable string or a default value
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool returns an environment variable as bool or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(strings.ToLower(valueStr)); err == nil {
			return value
		}
		switch strings.ToLower(valueStr) {
		case "yes":
			return true
		case "no":
			return false
		}
	}
	return defaultValue
}

// sha256OfString returns the SHA256 hash of a string
func sha256OfString(input string) []byte {
	hash := sha256.Sum256([]byte(input))
	return hash[:]
}
