// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/config"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Services are the ledger services a command runs against.
type Services struct {
	fx.In

	Seller         sellerdomain.Service
	Platform       platformdomain.Service
	Ledger         ledgerdomain.Service
	Reconciliation reconciliationdomain.Service
	Settings       *config.LedgerConfigHolder `optional:"true"`
}

// Runner starts the services, calls fn and tears them down again.
type Runner func(ctx context.Context, fn func(ctx context.Context, svc Services) error) error

const operatorActor = "ledgerctl"

func NewRootCommand(run Runner, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the marketplace ledger and seller payouts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(promoteCmd(run))
	root.AddCommand(payoutCmd(run))
	root.AddCommand(reverseCmd(run))
	root.AddCommand(reconcileCmd(run))
	root.AddCommand(rereconcileCmd(run))
	root.AddCommand(resolveCmd(run))
	root.AddCommand(balanceCmd(run))
	root.AddCommand(statementCmd(run))
	root.AddCommand(historyCmd(run))

	return root
}

func (s Services) retention() time.Duration {
	if s.Settings == nil {
		return config.DefaultLedgerConfig().RetentionPeriod
	}
	return s.Settings.Get().RetentionPeriod
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(flag, raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("--%s is required", flag)
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("--%s: invalid id %q", flag, raw)
	}
	return id, nil
}

func parseIDs(flag string, raw []string) ([]snowflake.ID, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("--%s is required", flag)
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, item := range raw {
		id, err := parseID(flag, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
