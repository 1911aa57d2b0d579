package seller

import (
	"github.com/smallbiznis/marketledger/internal/seller/service"
	"go.uber.org/fx"
)

var Module = fx.Module("seller.service",
	fx.Provide(service.NewService),
)
