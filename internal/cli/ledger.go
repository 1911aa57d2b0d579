package cli

import (
	"context"

	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/spf13/cobra"
)

type historyView struct {
	Transaction ledgerdomain.FinancialTransaction
	History     []ledgerdomain.TransactionStatusHistory
}

func historyCmd(run Runner) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a financial transaction and its status history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID("transaction", id)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				txn, err := svc.Ledger.Get(ctx, txnID)
				if err != nil {
					return err
				}
				history, err := svc.Ledger.History(ctx, txnID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), historyView{Transaction: txn, History: history})
			})
		},
	}
	cmd.Flags().StringVar(&id, "transaction", "", "Financial transaction id")
	return cmd
}
