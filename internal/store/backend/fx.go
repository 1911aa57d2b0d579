// Package backend selects the store adapter the process runs on.
package backend

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/memory"
	"github.com/smallbiznis/marketledger/internal/store/relational"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("store",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config Config
	DB     *gorm.DB `optional:"true"`
	Log    *zap.Logger
}

type Config struct {
	Backend string
}

func New(p Params) (store.UnitOfWork, error) {
	kind := strings.ToLower(strings.TrimSpace(p.Config.Backend))
	if kind == "" {
		kind = store.BackendRelational
	}

	switch kind {
	case store.BackendMemory:
		p.Log.Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	case store.BackendRelational:
		if p.DB == nil {
			return nil, fmt.Errorf("store backend %q requires a database connection", kind)
		}
		p.Log.Info("using relational store", zap.String("dialect", p.DB.Dialector.Name()))
		return relational.New(p.DB), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", p.Config.Backend)
	}
}
