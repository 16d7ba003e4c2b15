package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/resume-scanner/internal/export"
	"github.com/joseph-ayodele/resume-scanner/internal/ingest"
)

var (
	watchDirs     []string
	watchKeywords []string
	watchOut      string
	watchExisting bool
	watchDebounce time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Scan every CSV entry list dropped into a folder until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context())
		},
	}
)

func init() {
	watchCmd.Flags().StringSliceVar(&watchDirs, "dir", nil, "directories to watch for CSV files (required)")
	watchCmd.Flags().StringSliceVar(&watchKeywords, "keywords", nil, "comma-separated keywords to look for (required)")
	watchCmd.Flags().StringVar(&watchOut, "out", "", "output XLSX file (defaults to export.path)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also scan CSV files already in the folder")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "quiet period before a written file is picked up")
	_ = watchCmd.MarkFlagRequired("dir")
	_ = watchCmd.MarkFlagRequired("keywords")
}

func runWatch(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	if watchOut == "" {
		watchOut = cfg.Export.Path
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close(context.Background(), logger)

	files, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       watchDirs,
		InitialScan: watchExisting,
		Debounce:    watchDebounce,
	}, logger)
	if err != nil {
		return err
	}
	sink := export.NewService(watchOut, cfg.Export.Sheet, logger)
	logger.Info("watching for entry lists", "dirs", watchDirs, "out", watchOut)

	for {
		select {
		case path, ok := <-files:
			if !ok {
				return nil
			}
			// one bad file must not stop the watch
			if err := scanCSV(ctx, p.coord, sink, logger, path, watchKeywords, 500*time.Millisecond); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Error("entry list failed", "csv", path, "error", err)
			}
		case err, ok := <-errs:
			if ok {
				logger.Warn("watch error", "error", err)
			} else {
				errs = nil
			}
		}
	}
}
