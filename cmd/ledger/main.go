package main

import (
	"fmt"
	"os"

	"github.com/smallbiznis/marketledger/internal/app"
	"github.com/smallbiznis/marketledger/internal/config"
	"github.com/smallbiznis/marketledger/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	application := fx.New(
		app.Core(cfg),

		// Background Jobs
		scheduler.Module,
	)
	application.Run()
}
