package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig holds the tunables that may change while the process runs.
type LedgerConfig struct {
	RetentionPeriod         time.Duration `mapstructure:"retentionPeriod"`
	ReconciliationTolerance int64         `mapstructure:"reconciliationTolerance"`
	SettlementTypes         []string      `mapstructure:"settlementTypes"`
	PromotionBatchSize      int           `mapstructure:"promotionBatchSize"`
	Retry                   RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	BaseBackoff time.Duration `mapstructure:"baseBackoff"`
	MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		RetentionPeriod:         7 * 24 * time.Hour,
		ReconciliationTolerance: 0,
		SettlementTypes: []string{
			string(ledgerdomain.TypeSaleCredit),
			string(ledgerdomain.TypeFee),
			string(ledgerdomain.TypePayout),
			string(ledgerdomain.TypeRefund),
		},
		PromotionBatchSize: 100,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: 100 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
		},
	}
}

// SettlementTransactionTypes returns the configured types as ledger types.
func (c LedgerConfig) SettlementTransactionTypes() []ledgerdomain.TransactionType {
	out := make([]ledgerdomain.TransactionType, 0, len(c.SettlementTypes))
	for _, raw := range c.SettlementTypes {
		out = append(out, ledgerdomain.TransactionType(strings.TrimSpace(raw)))
	}
	return out
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewLedgerConfigHolder reads ledger.yml from the usual locations, falling
// back to defaults, and reloads it whenever the file changes.
func NewLedgerConfigHolder(log *zap.Logger) (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/marketledger/config") // Volume-mounted config
	v.AddConfigPath("/etc/marketledger")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	return newLedgerConfigHolder(v, log)
}

// NewLedgerConfigHolderFromFile is NewLedgerConfigHolder for an explicit path.
func NewLedgerConfigHolderFromFile(path string, log *zap.Logger) (*LedgerConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")
	return newLedgerConfigHolder(v, log)
}

func newLedgerConfigHolder(v *viper.Viper, log *zap.Logger) (*LedgerConfigHolder, error) {
	log = log.Named("ledger.config")

	v.SetEnvPrefix("MARKETLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.retentionPeriod", defaults.RetentionPeriod)
	v.SetDefault("ledger.reconciliationTolerance", defaults.ReconciliationTolerance)
	v.SetDefault("ledger.settlementTypes", defaults.SettlementTypes)
	v.SetDefault("ledger.promotionBatchSize", defaults.PromotionBatchSize)
	v.SetDefault("ledger.retry.maxAttempts", defaults.Retry.MaxAttempts)
	v.SetDefault("ledger.retry.baseBackoff", defaults.Retry.BaseBackoff)
	v.SetDefault("ledger.retry.maxBackoff", defaults.Retry.MaxBackoff)

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)

	if !fromFile {
		log.Info("ledger config file not found, using defaults")
		return holder, nil
	}

	log.Info("ledger config loaded", zap.String("file", v.ConfigFileUsed()))
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerConfig(v)
		if err != nil {
			log.Warn("invalid ledger config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var cfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return LedgerConfig{}, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.RetentionPeriod < 0 {
		return errors.New("ledger.retentionPeriod cannot be negative")
	}
	if cfg.ReconciliationTolerance < 0 {
		return errors.New("ledger.reconciliationTolerance cannot be negative")
	}
	if len(cfg.SettlementTypes) == 0 {
		return errors.New("ledger.settlementTypes cannot be empty")
	}
	for _, raw := range cfg.SettlementTypes {
		if _, err := ledgerdomain.PolicyFor(ledgerdomain.TransactionType(strings.TrimSpace(raw))); err != nil {
			return fmt.Errorf("ledger.settlementTypes: unknown type %q", raw)
		}
	}
	if cfg.PromotionBatchSize < 0 {
		return errors.New("ledger.promotionBatchSize cannot be negative")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("ledger.retry.maxAttempts must be at least 1")
	}
	if cfg.Retry.BaseBackoff <= 0 {
		return errors.New("ledger.retry.baseBackoff must be positive")
	}
	return nil
}
