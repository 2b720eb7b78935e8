package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edgeledger/internal/sync"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded transactions",
		Long: `List transactions oldest first, optionally filtered by state.

Examples:
  edgeledger list
  edgeledger list --pending
  edgeledger list --failed --json`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	cmd.Flags().Bool("pending", false, "only transactions awaiting sync")
	cmd.Flags().Bool("synced", false, "only synced transactions")
	cmd.Flags().Bool("failed", false, "only permanently failed transactions")
	cmd.Flags().Int("limit", 0, "maximum number of transactions (0 = all)")
	cmd.MarkFlagsMutuallyExclusive("pending", "synced", "failed")

	return cmd
}

// listEntry is the JSON shape of one listed transaction.
type listEntry struct {
	ID          string  `json:"id"`
	CreatedAt   string  `json:"created_at"`
	Amount      string  `json:"amount"`
	Description string  `json:"description"`
	State       string  `json:"state"`
	RetryCount  int     `json:"retry_count"`
	SyncedAt    *string `json:"synced_at,omitempty"`
}

func runList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	filter := sync.ListFilter{}
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	switch {
	case flagSet(cmd, "pending"):
		filter.State = sync.TxPending
	case flagSet(cmd, "synced"):
		filter.State = sync.TxSynced
	case flagSet(cmd, "failed"):
		filter.State = sync.TxPermanentlyFailed
	}

	sess, err := openSession(cmd.Context(), cc, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	txs, err := sess.Service.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), toListEntries(txs))
	}

	if len(txs) == 0 {
		cc.Statusf("No transactions\n")
		return nil
	}

	printTransactions(cmd.OutOrStdout(), txs)

	return nil
}

func flagSet(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func toListEntries(txs []sync.Transaction) []listEntry {
	entries := make([]listEntry, 0, len(txs))

	for i := range txs {
		tx := &txs[i]
		e := listEntry{
			ID:          tx.ID,
			CreatedAt:   sync.FromUnixNano(tx.CreatedAt).Format(timeFormatJSON),
			Amount:      tx.Amount.String(),
			Description: tx.Description,
			State:       string(tx.State()),
			RetryCount:  tx.RetryCount,
		}

		if tx.SyncedAt != nil {
			at := sync.FromUnixNano(*tx.SyncedAt).Format(timeFormatJSON)
			e.SyncedAt = &at
		}

		entries = append(entries, e)
	}

	return entries
}

func printTransactions(w io.Writer, txs []sync.Transaction) {
	rows := make([][]string, 0, len(txs))

	for i := range txs {
		tx := &txs[i]
		rows = append(rows, []string{
			tx.ID,
			formatNanos(tx.CreatedAt),
			formatAmount(tx.Amount),
			string(tx.State()),
			strconv.Itoa(tx.RetryCount),
			tx.Description,
		})
	}

	printTable(w, []string{"ID", "CREATED", "AMOUNT", "STATE", "RETRIES", "DESCRIPTION"}, rows)
}
