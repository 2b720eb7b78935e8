package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/config"
)

func newRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <amount> [description...]",
		Short: "Record a transaction locally",
		Long: `Record a transaction in the local ledger. The write succeeds whether or
not the device is online; the transaction stays pending until a sync pass
delivers it.

If a watch daemon is running it is nudged to sync right away (it only does
so while online).

Examples:
  edgeledger record 12.50 coffee
  edgeledger record -- -40 refund for order 1182`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRecord,
	}
}

// recordResult is the JSON shape of a recorded transaction.
type recordResult struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Notified    bool   `json:"daemon_notified"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}

	description := strings.Join(args[1:], " ")

	sess, err := openSession(cmd.Context(), cc, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	id, err := sess.Service.Record(cmd.Context(), amount, description)
	if err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}

	notified := nudgeDaemon(cc)

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), recordResult{
			ID:          id,
			Amount:      amount.String(),
			Description: description,
			Notified:    notified,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	cc.Statusf("Recorded %s %q (pending)\n", formatAmount(amount), description)

	return nil
}

// parseAmount parses a decimal amount string.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: must be a decimal number", s)
	}

	return d, nil
}

// nudgeDaemon asks a running daemon to run a pass. Non-fatal: without a
// daemon the record simply waits for the next one.
func nudgeDaemon(cc *CLIContext) bool {
	pid, err := signalDaemon(config.PIDPath(cc.Cfg.DBPath), sigForceSync)
	if err != nil {
		if !errors.Is(err, errNoDaemon) {
			cc.Logger.Warn("could not notify daemon", "error", err)
		}

		cc.Statusf("No daemon running; transaction will sync on the next pass\n")

		return false
	}

	cc.Logger.Debug("notified daemon", "pid", pid)

	return true
}
