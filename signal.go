package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Daemon control signals. SIGHUP asks the daemon to reload its config and
// run a pass; SIGUSR1 toggles connectivity.
const (
	sigForceSync  = syscall.SIGHUP
	sigToggleConn = syscall.SIGUSR1
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. The first signal lets the scheduler finish
// the in-flight pass; the second is for when something hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// controlSignals delivers SIGHUP and SIGUSR1 until ctx is done.
func controlSignals(ctx context.Context) <-chan os.Signal {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sigForceSync, sigToggleConn)

	go func() {
		<-ctx.Done()
		signal.Stop(ch)
	}()

	return ch
}
