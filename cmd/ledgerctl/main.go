package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smallbiznis/marketledger/internal/app"
	"github.com/smallbiznis/marketledger/internal/cli"
	"github.com/smallbiznis/marketledger/internal/config"
	"go.uber.org/fx"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(runServices, Version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServices builds the service graph without the scheduler, so a command
// never races the long-running process for work.
func runServices(ctx context.Context, fn func(context.Context, cli.Services) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	var svc cli.Services
	application := fx.New(
		app.Core(cfg),
		fx.NopLogger,
		fx.Invoke(func(s cli.Services) { svc = s }),
	)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()

	return fn(ctx, svc)
}
