package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	reconciliationservice "github.com/smallbiznis/marketledger/internal/reconciliation/service"
	"github.com/smallbiznis/marketledger/internal/retry"
	sellerservice "github.com/smallbiznis/marketledger/internal/seller/service"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/backend"
	"github.com/smallbiznis/marketledger/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(
		ProvideConfig,
		NewLedgerConfigHolder,
		ProvideDBConfig,
		ProvideStoreConfig,
		ProvideRetrySettings,
		ProvideSellerSettings,
		ProvideReconciliationSettings,
		NewSnowflakeNode,
	),
)

// ProvideConfig loads and validates the environment configuration.
func ProvideConfig() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case store.BackendMemory, store.BackendRelational:
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}
	if c.StoreBackend == store.BackendRelational {
		switch strings.ToLower(c.DBType) {
		case "postgres", "mysql", "sqlite":
		default:
			return fmt.Errorf("DATABASE_TYPE: unsupported type %q", c.DBType)
		}
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023, got %d", c.SnowflakeNode)
	}
	return nil
}

func ProvideDBConfig(cfg Config) db.Config {
	return db.Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		SQLitePath:      cfg.DBSQLitePath,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowThreshold:   200 * time.Millisecond,
		Instrument:      true,
	}
}

func ProvideStoreConfig(cfg Config) backend.Config {
	return backend.Config{Backend: cfg.StoreBackend}
}

// The settings providers hand services a view of the holder, so a reloaded
// ledger.yml reaches them on their next call.

func ProvideRetrySettings(holder *LedgerConfigHolder) retry.ConfigSource {
	return func() retry.Config {
		ledger := holder.Get()
		return retry.Config{
			MaxAttempts: ledger.Retry.MaxAttempts,
			BaseBackoff: ledger.Retry.BaseBackoff,
			MaxBackoff:  ledger.Retry.MaxBackoff,
		}
	}
}

func ProvideSellerSettings(holder *LedgerConfigHolder) sellerservice.ConfigSource {
	return func() sellerservice.Config {
		return sellerservice.Config{PromotionBatchSize: holder.Get().PromotionBatchSize}
	}
}

func ProvideReconciliationSettings(holder *LedgerConfigHolder) reconciliationservice.ConfigSource {
	return func() reconciliationservice.Config {
		ledger := holder.Get()
		return reconciliationservice.Config{
			Tolerance:       ledger.ReconciliationTolerance,
			SettlementTypes: ledger.SettlementTransactionTypes(),
		}
	}
}

func NewSnowflakeNode(cfg Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
