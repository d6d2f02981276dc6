package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// startFlags are the runtime options that override the environment.
type startFlags struct {
	debug   bool
	logFile string
	quiet   bool
}

// newRootCmd builds the gitwatch command tree. base supplies the non-config
// dependencies of the App started by `gitwatch start`.
func newRootCmd(versionInfo config.VersionInfo, base AppOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitwatch",
		Short: "gitwatch - commit file changes automatically after a quiet period",
		Long: "gitwatch watches a directory inside a git repository and commits changed files " +
			"once editing has paused, optionally pushing each commit.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return gitwatchErrors.NewConfigError("flags", nil, gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidFlag, err.Error()))
	})

	cmd.AddCommand(newStartCmd(versionInfo, base))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gitwatch %s (%s) built on %s\n",
				versionInfo.Version, versionInfo.Commit, versionInfo.Date)
		},
	})

	return cmd
}

func newStartCmd(versionInfo config.VersionInfo, base AppOptions) *cobra.Command {
	var flags startFlags

	cmd := &cobra.Command{
		Use:   "start [config-path]",
		Short: "Watch and auto-commit until interrupted",
		Long: "Loads the configuration (writing defaults when the file does not exist), then " +
			"watches the configured directory and commits changes after commit_delay seconds " +
			"without further edits. Stop with Ctrl-C; pending changes are committed on exit " +
			"when flush_on_exit is set.",
		Example: "  gitwatch start\n" +
			"  gitwatch start ./gitwatch.yaml --debug\n" +
			"  GITWATCH_VERBOSE=false gitwatch start",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg.VersionInfo = versionInfo
			cfg.LoadFromEnvironment()
			applyFlags(cmd, cfg, flags)

			opts := base
			opts.Config = cfg
			if opts.Stdout == nil {
				opts.Stdout = cmd.OutOrStdout()
			}
			if opts.Stderr == nil {
				opts.Stderr = cmd.ErrOrStderr()
			}
			app := NewApp(opts)

			ctx, stop := notifyContext(cmd.Context(), app)
			defer stop()

			err = app.Run(ctx)
			app.PrintSummary()
			if closeErr := app.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging (env GITWATCH_DEBUG)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Path to log file (default: ~/.local/share/gitwatch/logs/gitwatch-{dir-hash}.log)")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Hide informational messages")

	return cmd
}

// applyFlags overrides the environment with flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags startFlags) {
	if cmd.Flags().Changed("debug") {
		cfg.Debug = flags.debug
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if cmd.Flags().Changed("quiet") {
		cfg.Verbose = !flags.quiet
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [config-path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return gitwatchErrors.NewConfigError("config_file", path,
					gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, "file already exists (use --force to overwrite)"))
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

// notifyContext cancels on SIGINT, SIGTERM or SIGHUP. The first signal starts
// a graceful shutdown; a second one releases the lock and exits immediately.
func notifyContext(parent context.Context, app *App) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			_, _ = fmt.Fprintf(app.Stdout, "\nReceived signal %v, stopping gitwatch...\n", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case <-sigs:
			_, _ = fmt.Fprintf(app.Stderr, "⚠️ Forced exit; pending changes were not committed\n")
			_ = app.Close()
			os.Exit(exitInterrupted)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}
