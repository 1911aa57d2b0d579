package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/apperror"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/pkg/db/pagination"
	"github.com/spf13/cobra"
)

type itemErrorView struct {
	SellerTransactionID snowflake.ID
	ErrorKind           string
	Error               string
}

type promotionView struct {
	TerritoryID snowflake.ID
	Retention   string
	Promoted    []snowflake.ID
	Skipped     []snowflake.ID
	Failed      []itemErrorView
}

type payoutItemView struct {
	SellerTransactionID snowflake.ID
	Status              sellerdomain.PayoutItemStatus
	PayoutTransactionID snowflake.ID `json:",omitempty"`
	ErrorKind           string       `json:",omitempty"`
	Error               string       `json:",omitempty"`
}

type statementView struct {
	Balance      sellerdomain.SellerBalance
	Transactions []sellerdomain.SellerTransaction
	PageInfo     pagination.PageInfo
}

type payoutView struct {
	BatchID   snowflake.ID
	Succeeded int
	Items     []payoutItemView
}

func promoteCmd(run Runner) *cobra.Command {
	var (
		territory string
		retention time.Duration
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Move pending seller earnings past the retention window to ready for payout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			territoryID, err := parseID("territory", territory)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				window := svc.retention()
				if cmd.Flags().Changed("retention") {
					window = retention
				}
				result, err := svc.Seller.PromoteReadyForPayout(ctx, territoryID, window)
				if err != nil {
					return err
				}
				view := promotionView{
					TerritoryID: territoryID,
					Retention:   window.String(),
					Promoted:    result.Promoted,
					Skipped:     result.Skipped,
				}
				for _, failed := range result.Failed {
					view.Failed = append(view.Failed, itemErrorView{
						SellerTransactionID: failed.SellerTransactionID,
						ErrorKind:           apperror.Kind(failed.Err),
						Error:               failed.Err.Error(),
					})
				}
				if err := writeJSON(cmd.OutOrStdout(), view); err != nil {
					return err
				}
				if len(view.Failed) > 0 {
					return fmt.Errorf("%d seller transactions failed to promote", len(view.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&territory, "territory", "", "Territory id")
	cmd.Flags().DurationVar(&retention, "retention", 0, "Retention window (defaults to the configured period)")
	return cmd
}

func payoutCmd(run Runner) *cobra.Command {
	var (
		batch string
		ids   []string
	)
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Mark seller transactions as paid by a payout batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID("batch", batch)
			if err != nil {
				return err
			}
			txnIDs, err := parseIDs("ids", ids)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				result, err := svc.Seller.Payout(ctx, batchID, txnIDs)
				if err != nil {
					return err
				}
				view := payoutView{BatchID: result.BatchID, Succeeded: result.Succeeded()}
				for _, item := range result.Items {
					itemView := payoutItemView{
						SellerTransactionID: item.SellerTransactionID,
						Status:              item.Status,
						PayoutTransactionID: item.PayoutTransactionID,
						ErrorKind:           item.ErrorKind,
					}
					if item.Err != nil {
						itemView.Error = item.Err.Error()
					}
					view.Items = append(view.Items, itemView)
				}
				if err := writeJSON(cmd.OutOrStdout(), view); err != nil {
					return err
				}
				if failed := len(view.Items) - view.Succeeded; failed > 0 {
					return fmt.Errorf("%d of %d payouts not completed", failed, len(view.Items))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "Payout batch id")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Seller transaction ids (comma separated)")
	return cmd
}

func reverseCmd(run Runner) *cobra.Command {
	var (
		id     string
		reason string
		actor  string
	)
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Reverse an unpaid seller transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID("id", id)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				txn, err := svc.Seller.Reverse(ctx, sellerdomain.ReverseRequest{
					SellerTransactionID: txnID,
					Reason:              reason,
					ActorID:             actor,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), txn)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Seller transaction id")
	cmd.Flags().StringVar(&reason, "reason", "", "Reversal reason")
	cmd.Flags().StringVar(&actor, "actor", operatorActor, "Actor recorded in the status history")
	return cmd
}

func balanceCmd(run Runner) *cobra.Command {
	var territory, seller string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a seller balance, or the platform balance when --seller is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			territoryID, err := parseID("territory", territory)
			if err != nil {
				return err
			}
			if seller == "" {
				return run(cmd.Context(), func(ctx context.Context, svc Services) error {
					balance, err := svc.Platform.GetBalance(ctx, territoryID)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), balance)
				})
			}
			sellerID, err := parseID("seller", seller)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				balance, err := svc.Seller.GetBalance(ctx, territoryID, sellerID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), balance)
			})
		},
	}
	cmd.Flags().StringVar(&territory, "territory", "", "Territory id")
	cmd.Flags().StringVar(&seller, "seller", "", "Seller id")
	return cmd
}

func statementCmd(run Runner) *cobra.Command {
	var (
		territory, seller string
		page              pagination.Pagination
	)
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Show a seller balance with every transaction behind it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			territoryID, err := parseID("territory", territory)
			if err != nil {
				return err
			}
			sellerID, err := parseID("seller", seller)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc Services) error {
				statement, err := svc.Seller.Statement(ctx, territoryID, sellerID)
				if err != nil {
					return err
				}
				txns, info, err := pagination.Paginate(statement.Transactions, page, statementCursor)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), statementView{
					Balance:      statement.Balance,
					Transactions: txns,
					PageInfo:     info,
				})
			})
		},
	}
	cmd.Flags().StringVar(&territory, "territory", "", "Territory id")
	cmd.Flags().StringVar(&seller, "seller", "", "Seller id")
	cmd.Flags().IntVar(&page.PageSize, "page-size", pagination.DefaultPageSize, "Transactions per page")
	cmd.Flags().StringVar(&page.PageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func statementCursor(txn sellerdomain.SellerTransaction) pagination.Cursor {
	return pagination.Cursor{
		ID:        txn.ID.String(),
		CreatedAt: txn.CreatedAt.Format(time.RFC3339Nano),
	}
}
