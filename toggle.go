package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/config"
)

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle the daemon's online/offline state",
		Long: `Flip the running watch daemon between online and offline (SIGUSR1).
Going online starts a reconciliation pass immediately. Connectivity only
exists inside the daemon, so this command needs one running.`,
		Args: cobra.NoArgs,
		RunE: runToggle,
	}
}

func runToggle(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	pid, err := signalDaemon(config.PIDPath(cc.Cfg.DBPath), sigToggleConn)
	if err != nil {
		if errors.Is(err, errNoDaemon) {
			return fmt.Errorf("%w: start one with 'edgeledger watch'", err)
		}

		return err
	}

	cc.Statusf("Asked running daemon (PID %d) to toggle connectivity\n", pid)

	return nil
}
