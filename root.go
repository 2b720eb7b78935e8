package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// logFilePermissions: owner rw, group/other r.
const logFilePermissions = 0o644

// CLIFlags is a snapshot of the persistent flags for the running command.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs: parsed flags, the
// resolved configuration, and the logger built from both.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	CLI    config.CLIOverrides // kept so the daemon can re-resolve on reload
	Logger *slog.Logger

	closeLog func()
}

type cliContextKey struct{}

// withCLIContext returns ctx carrying cc.
func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run hook.
// Panics if it is missing, which means a command was wired without it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("BUG: CLIContext not set on command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edgeledger",
		Short: "Offline-first transaction ledger",
		Long: `Record monetary transactions locally, with or without a network, and
reconcile them with the remote ledger when connectivity allows.

Run 'edgeledger watch' to start the background sync daemon. Other commands
talk to the local database directly and nudge the daemon when one is running.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok && cc.closeLog != nil {
				cc.closeLog()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newToggleCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and installs a CLIContext on the command's context.
func loadConfig(cmd *cobra.Command) error {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		DBPath:     flagDBPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		DBPath:     flags.DBPath,
	}

	// watch-only flags: only override when set explicitly.
	if f := cmd.Flags().Lookup("online"); f != nil && f.Changed {
		online := f.Value.String() == "true"
		cli.Online = &online
	}

	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		interval := f.Value.String()
		cli.Interval = &interval
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := buildLogger(resolved, flags)
	if err != nil {
		return err
	}

	logger.Debug("config resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("db_path", resolved.DBPath),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(withCLIContext(ctx, &CLIContext{
		Flags:    flags,
		Cfg:      resolved,
		CLI:      cli,
		Logger:   logger,
		closeLog: closeLog,
	}))

	return nil
}

// buildLogger creates an slog.Logger from the resolved config and CLI flags.
// The config-file level is the baseline; --verbose and --quiet override it.
// Output goes to log_file when set, otherwise stderr. Format "auto" picks
// text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Resolved, flags CLIFlags) (*slog.Logger, func(), error) {
	level := parseLogLevel(cfg.Logging.LogLevel)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
		tty               = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	)

	if cfg.Logging.LogFile != "" {
		f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}

		w = f
		tty = false
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler

	switch cfg.Logging.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		if tty {
			handler = slog.NewTextHandler(w, opts)
		} else {
			handler = slog.NewJSONHandler(w, opts)
		}
	}

	return slog.New(handler), closeFn, nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
