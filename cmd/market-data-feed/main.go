package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/app"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/config"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
)

func main() {
	var cfgFile string

	root := &cobra.Command{
		Use:   "market-data-feed",
		Short: "Reconnecting market data WebSocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			if cfg.Logging.DevMode {
				cfg.Print()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Sugar().Infow("starting service",
				"service.name", cfg.ServiceName,
				"service.version", cfg.ServiceVersion,
			)

			if err := app.Run(ctx, cfg, log); err != nil {
				log.Sugar().Errorw("application exited with error", "error", err)
				return err
			}

			log.Sugar().Infow("shutdown complete")
			return nil
		},
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to config file (optional, ENV otherwise)")
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
