package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/resume-scanner/internal/server"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Connect to the configured status store, create its schema and check its health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		start := time.Now()
		store, err := server.OpenStore(ctx, cfg.Store, logger)
		if err != nil {
			return fmt.Errorf("opening status store: %w", err)
		}
		defer store.Close(logger)

		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return fmt.Errorf("status store health: FAIL (%w)", err)
		}
		fmt.Printf("status store health: OK (driver=%s, %dms)\n", cfg.Store.Driver, time.Since(start).Milliseconds())
		return nil
	},
}
