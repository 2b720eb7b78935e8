package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/sync"
)

// defaultLogEntries mirrors the event log's own default.
const defaultLogEntries = 10

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the sync event log",
		Long: `Show recent sync events, most recent first. With --tx, show the complete
history of one transaction, oldest first.`,
		Args: cobra.NoArgs,
		RunE: runLog,
	}

	cmd.Flags().IntP("limit", "n", defaultLogEntries, "number of recent events to show")
	cmd.Flags().String("tx", "", "show the history of one transaction")

	return cmd
}

// logEntry is the JSON shape of one event.
type logEntry struct {
	Seq           int64  `json:"seq"`
	At            string `json:"at"`
	Type          string `json:"event_type"`
	TransactionID string `json:"transaction_id,omitempty"`
	Detail        string `json:"detail"`
}

func runLog(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	limit, _ := cmd.Flags().GetInt("limit")
	txID, _ := cmd.Flags().GetString("tx")

	sess, err := openSession(cmd.Context(), cc, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	var events []sync.Event

	if txID != "" {
		tx, history, histErr := sess.Service.History(cmd.Context(), txID)
		if histErr != nil {
			return fmt.Errorf("reading history: %w", histErr)
		}

		cc.Statusf("Transaction %s: %s %q, %s, %d retries\n",
			tx.ID, formatAmount(tx.Amount), tx.Description, tx.State(), tx.RetryCount)

		events = history
	} else {
		events, err = sess.Service.RecentEvents(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("reading event log: %w", err)
		}
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), toLogEntries(events))
	}

	if len(events) == 0 {
		cc.Statusf("No sync events\n")
		return nil
	}

	printEvents(cmd.OutOrStdout(), events)

	return nil
}

func toLogEntries(events []sync.Event) []logEntry {
	entries := make([]logEntry, 0, len(events))

	for _, ev := range events {
		entries = append(entries, logEntry{
			Seq:           ev.Seq,
			At:            sync.FromUnixNano(ev.At).Format(timeFormatJSON),
			Type:          string(ev.Type),
			TransactionID: ev.TransactionID,
			Detail:        ev.Detail,
		})
	}

	return entries
}

func printEvents(w io.Writer, events []sync.Event) {
	rows := make([][]string, 0, len(events))

	for _, ev := range events {
		rows = append(rows, []string{
			formatNanos(ev.At),
			string(ev.Type),
			shortID(ev.TransactionID),
			ev.Detail,
		})
	}

	printTable(w, []string{"TIME", "EVENT", "TX", "DETAIL"}, rows)
}
