package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/edgeledger/internal/config"
	"github.com/tonimelisma/edgeledger/internal/sync"
)

const (
	// configDebounce coalesces the burst of events editors produce on save.
	configDebounce = 250 * time.Millisecond

	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync daemon",
		Long: `Run reconciliation passes on a fixed interval until interrupted.

The daemon starts offline unless --online (or sync.start_online) is set.
Control it from another terminal:
  edgeledger toggle   flip online/offline (SIGUSR1); going online syncs at once
  edgeledger sync     run a pass now and reload the config (SIGHUP)

The config file is also watched and reloaded on change. SIGINT/SIGTERM let
the in-flight pass finish; a second signal exits immediately.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().Bool("online", false, "start with connectivity enabled")
	cmd.Flags().String("interval", "", "time between passes (e.g. 5s, 1m)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	cfg := cc.Cfg

	cleanup, err := writePIDFile(config.PIDPath(cfg.DBPath))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx = shutdownContext(ctx, logger)

	sess, err := NewLedgerSession(ctx, cfg, sessionOptions{scheduled: true}, logger)
	if err != nil {
		return err
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	d := newDaemon(sess, config.NewHolder(cfg, cfg.ConfigPath), cc.CLI, logger)
	d.metricsAddr = metricsAddr
	d.startOnline = cfg.StartOnline

	logger.Info("watch daemon started",
		slog.Int("pid", os.Getpid()),
		slog.String("db_path", cfg.DBPath),
		slog.Bool("online", cfg.StartOnline),
		slog.Duration("interval", cfg.Interval),
	)

	runErr := d.run(ctx)

	if d.stopScheduler(d.holder.Config().ShutdownTimeout) {
		if err := sess.Store.Close(); err != nil {
			logger.Warn("closing store", slog.String("error", err.Error()))
		}
	}

	logger.Info("watch daemon stopped")

	return runErr
}

// daemon owns the long-running pieces of the watch command.
type daemon struct {
	sess        *LedgerSession
	holder      *config.Holder
	logger      *slog.Logger
	metricsAddr string
	startOnline bool

	// resolve re-reads the configuration on reload. Tests inject a stub.
	resolve func() (*config.Resolved, error)
}

func newDaemon(sess *LedgerSession, holder *config.Holder, cli config.CLIOverrides, logger *slog.Logger) *daemon {
	return &daemon{
		sess:   sess,
		holder: holder,
		logger: logger,
		resolve: func() (*config.Resolved, error) {
			return config.Resolve(config.ReadEnvOverrides(), cli)
		},
	}
}

// run goes online if configured to, then starts the scheduler and the
// control goroutines and blocks until ctx is canceled or one of them fails.
func (d *daemon) run(ctx context.Context) error {
	if d.startOnline {
		if _, err := d.sess.Service.SetOnline(ctx, true); err != nil {
			d.logger.Error("initial pass failed", slog.String("error", err.Error()))
		}
	}

	d.publishConnectivity(ctx)

	g, gctx := errgroup.WithContext(ctx)

	d.sess.Scheduler.Start(gctx)

	g.Go(func() error {
		return d.handleSignals(gctx, controlSignals(gctx))
	})

	g.Go(func() error {
		return d.watchConfig(gctx)
	})

	if d.metricsAddr != "" {
		g.Go(func() error {
			return d.serveMetrics(gctx)
		})
	}

	return g.Wait()
}

// stopScheduler waits up to timeout for the in-flight pass. It reports
// whether the scheduler stopped in time.
func (d *daemon) stopScheduler(timeout time.Duration) bool {
	done := make(chan struct{})

	go func() {
		d.sess.Scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.logger.Warn("shutdown timeout exceeded, abandoning in-flight pass",
			slog.Duration("timeout", timeout),
		)

		return false
	}
}

// handleSignals serves the control signals sent by the toggle and sync
// commands until ctx is done.
func (d *daemon) handleSignals(ctx context.Context, sigs <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			d.logger.Debug("control signal received", slog.String("signal", sig.String()))

			switch sig {
			case sigForceSync:
				d.reload()
				d.sess.Scheduler.Trigger()
			case sigToggleConn:
				d.toggle(ctx)
			}
		}
	}
}

// toggle flips connectivity. Going online runs a pass on this goroutine
// before returning.
func (d *daemon) toggle(ctx context.Context) {
	online, report, err := d.sess.Service.ToggleConnectivity(ctx)

	d.publishConnectivity(ctx)

	if err != nil {
		d.logger.Error("pass after going online failed", slog.String("error", err.Error()))
		return
	}

	if online && report != nil {
		d.logger.Info("back online, pass complete",
			slog.Int("synced", report.Synced),
			slog.Int("failed", report.Failed),
		)
	}
}

// publishConnectivity records the gate state for status readers.
func (d *daemon) publishConnectivity(ctx context.Context) {
	online := d.sess.Service.Online()

	err := d.sess.Store.SetMeta(context.WithoutCancel(ctx), sync.MetaDaemonOnline, strconv.FormatBool(online))
	if err != nil {
		d.logger.Warn("failed to publish connectivity", slog.String("error", err.Error()))
	}
}

// reload re-resolves the configuration and applies what can change at
// runtime. An invalid file keeps the previous configuration.
func (d *daemon) reload() {
	next, err := d.resolve()
	if err != nil {
		d.logger.Warn("config reload failed, keeping previous config",
			slog.String("error", err.Error()),
		)

		return
	}

	change := d.holder.Swap(next)

	if change.Interval {
		d.sess.Scheduler.SetInterval(next.Interval)
	}

	if len(change.Restart) > 0 {
		d.logger.Warn("config changes take effect on restart",
			slog.Any("keys", change.Restart),
		)
	}

	d.logger.Info("config reloaded", slog.Duration("interval", next.Interval))
}

// watchConfig reloads the configuration when its file changes. The parent
// directory is watched because editors often replace the file on save.
func (d *daemon) watchConfig(ctx context.Context) error {
	path := filepath.Clean(d.holder.Path())
	if path == "." {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		d.logger.Debug("not watching config directory",
			slog.String("dir", filepath.Dir(path)),
			slog.String("error", err.Error()),
		)

		return nil
	}

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(configDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			d.logger.Warn("config watcher error", slog.String("error", err.Error()))

		case <-debounce:
			debounce = nil

			d.logger.Info("config file changed", slog.String("path", path))
			d.reload()
		}
	}
}

// metricsHandler serves the default Prometheus registry, which holds the
// sync package's collectors.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// serveMetrics runs the metrics endpoint until ctx is done. A listen
// failure is returned and stops the daemon.
func (d *daemon) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.metricsAddr,
		Handler:           metricsHandler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	d.logger.Info("serving metrics", slog.String("addr", d.metricsAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}

		return nil
	}
}
