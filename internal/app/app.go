// Package app groups the fx modules shared by the marketledger binaries.
package app

import (
	"strings"

	"github.com/smallbiznis/marketledger/internal/clock"
	"github.com/smallbiznis/marketledger/internal/config"
	"github.com/smallbiznis/marketledger/internal/ledger"
	"github.com/smallbiznis/marketledger/internal/migration"
	"github.com/smallbiznis/marketledger/internal/observability"
	"github.com/smallbiznis/marketledger/internal/platform"
	"github.com/smallbiznis/marketledger/internal/reconciliation"
	"github.com/smallbiznis/marketledger/internal/retry"
	"github.com/smallbiznis/marketledger/internal/seller"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/backend"
	"github.com/smallbiznis/marketledger/pkg/db"
	"go.uber.org/fx"
)

// Core returns the infrastructure and domain services every process needs.
func Core(cfg config.Config) fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		retry.Module,
		Storage(cfg),

		// Functional Domains
		ledger.Module,
		platform.Module,
		seller.Module,
		reconciliation.Module,
	)
}

// Storage wires the store backend. The relational backend also opens the
// database and applies migrations on start.
func Storage(cfg config.Config) fx.Option {
	if strings.EqualFold(cfg.StoreBackend, store.BackendMemory) {
		return backend.Module
	}
	return fx.Options(
		db.Module,
		migration.Module,
		backend.Module,
	)
}
