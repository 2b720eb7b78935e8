package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/config"
	"github.com/tonimelisma/edgeledger/internal/sync"
)

// Daemon state strings for status output.
const (
	daemonRunning    = "running"
	daemonNotRunning = "not running"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync statistics and daemon state",
		Long: `Display how many transactions are synced, pending, and permanently
failed, together with event counts, the time of the last pass, and whether a
watch daemon is running and online.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusOutput is the JSON shape of the status command.
type statusOutput struct {
	*sync.Status
	DaemonState  string `json:"daemon"`
	DaemonPID    int    `json:"daemon_pid,omitempty"`
	DaemonOnline *bool  `json:"daemon_online,omitempty"`
	DBPath       string `json:"db_path"`
	Schema       int64  `json:"schema_version"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	sess, err := openSession(cmd.Context(), cc, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	out, err := buildStatus(cmd.Context(), sess, cc.Cfg)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	printStatusText(cmd.OutOrStdout(), out)

	return nil
}

// buildStatus combines the store snapshot with the daemon's state. The
// connectivity gate lives in the daemon's memory, so a one-shot process can
// only report what the daemon last published.
func buildStatus(ctx context.Context, sess *LedgerSession, cfg *config.Resolved) (*statusOutput, error) {
	st, err := sess.Service.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	schema, err := sess.Store.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}

	out := &statusOutput{Status: st, DaemonState: daemonNotRunning, DBPath: cfg.DBPath, Schema: schema}

	proc, err := findDaemon(config.PIDPath(cfg.DBPath))
	if err != nil {
		return out, nil //nolint:nilerr // no daemon is a normal state
	}

	out.DaemonState = daemonRunning
	out.DaemonPID = proc.Pid

	published, err := sess.Store.GetMeta(ctx, sync.MetaDaemonOnline)
	if err != nil {
		return nil, err
	}

	if b, parseErr := strconv.ParseBool(published); parseErr == nil {
		out.DaemonOnline = &b
	}

	return out, nil
}

func printStatusText(w io.Writer, s *statusOutput) {
	fmt.Fprintf(w, "Database:           %s (schema v%d)\n", s.DBPath, s.Schema)

	daemon := s.DaemonState
	if s.DaemonPID != 0 {
		daemon = fmt.Sprintf("%s (PID %d)", daemon, s.DaemonPID)
	}

	fmt.Fprintf(w, "Daemon:             %s\n", daemon)

	if s.DaemonOnline != nil {
		fmt.Fprintf(w, "Connectivity:       %s\n", onlineLabel(*s.DaemonOnline))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total:              %d\n", s.Total)
	fmt.Fprintf(w, "Synced:             %d\n", s.Synced)
	fmt.Fprintf(w, "Pending:            %d\n", s.Pending)
	fmt.Fprintf(w, "Permanently failed: %d\n", s.PermanentlyFailed)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Last pass:          %s\n", formatOptionalTime(s.LastPassAt))
	fmt.Fprintf(w, "Last success:       %s\n", formatOptionalTime(s.LastSuccessAt))
	fmt.Fprintf(w, "Events:             %d success, %d failure, %d error\n",
		s.Events[sync.EventSyncSuccess], s.Events[sync.EventSyncFailure], s.Events[sync.EventSyncError])
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}

	return "offline"
}
