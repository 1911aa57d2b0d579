package cli

import (
	"context"
	"fmt"
	"time"

	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	"github.com/smallbiznis/marketledger/pkg/money"
	"github.com/spf13/cobra"
)

func reconcileCmd(run Runner) *cobra.Command {
	var (
		territory  string
		date       string
		actual     int64
		currency   string
		reconciler string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a territory-day's settled ledger total with the external figure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			territoryID, err := parseID("territory", territory)
			if err != nil {
				return err
			}
			day, err := time.Parse(reconciliationdomain.DateLayout, date)
			if err != nil {
				return fmt.Errorf("--date: expected %s, got %q", reconciliationdomain.DateLayout, date)
			}
			amount, err := money.New(actual, currency)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				record, err := svc.Reconciliation.Reconcile(ctx, reconciliationdomain.ReconcileRequest{
					TerritoryID:  territoryID,
					Date:         day,
					Actual:       amount,
					ReconcilerID: reconciler,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), record)
			})
		},
	}
	cmd.Flags().StringVar(&territory, "territory", "", "Territory id")
	cmd.Flags().StringVar(&date, "date", "", "Reconciliation day (YYYY-MM-DD, UTC)")
	cmd.Flags().Int64Var(&actual, "actual", 0, "External settlement total in minor units")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&reconciler, "reconciler", operatorActor, "Reconciler id")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func rereconcileCmd(run Runner) *cobra.Command {
	var (
		record     string
		actual     int64
		currency   string
		reconciler string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "rereconcile",
		Short: "Recompute an existing reconciliation record against a corrected figure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := parseID("record", record)
			if err != nil {
				return err
			}
			amount, err := money.New(actual, currency)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				updated, err := svc.Reconciliation.Rereconcile(ctx, reconciliationdomain.RereconcileRequest{
					RecordID:     recordID,
					Actual:       amount,
					ReconcilerID: reconciler,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), updated)
			})
		},
	}
	cmd.Flags().StringVar(&record, "record", "", "Reconciliation record id")
	cmd.Flags().Int64Var(&actual, "actual", 0, "External settlement total in minor units")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&reconciler, "reconciler", operatorActor, "Reconciler id")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func resolveCmd(run Runner) *cobra.Command {
	var record, reconciler, notes string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark a reconciliation discrepancy as resolved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := parseID("record", record)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				resolved, err := svc.Reconciliation.Resolve(ctx, reconciliationdomain.ResolveRequest{
					RecordID:     recordID,
					ReconcilerID: reconciler,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resolved)
			})
		},
	}
	cmd.Flags().StringVar(&record, "record", "", "Reconciliation record id")
	cmd.Flags().StringVar(&reconciler, "reconciler", operatorActor, "Reconciler id")
	cmd.Flags().StringVar(&notes, "notes", "", "Resolution notes")
	return cmd
}
