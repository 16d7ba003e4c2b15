package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/batch"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/export"
	"github.com/joseph-ayodele/resume-scanner/internal/ingest"
)

var (
	batchCSV      string
	batchKeywords []string
	batchOut      string
	batchPoll     time.Duration

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Scan every resume listed in a CSV file and append the qualifying results to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context())
		},
	}
)

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "CSV file of user_id,resume_link rows (required)")
	batchCmd.Flags().StringSliceVar(&batchKeywords, "keywords", nil, "comma-separated keywords to look for (required)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "output XLSX file (defaults to export.path)")
	batchCmd.Flags().DurationVar(&batchPoll, "poll", 500*time.Millisecond, "status polling interval")
	_ = batchCmd.MarkFlagRequired("csv")
	_ = batchCmd.MarkFlagRequired("keywords")
}

func runBatch(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	if batchOut == "" {
		batchOut = cfg.Export.Path
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

	sink := export.NewService(batchOut, cfg.Export.Sheet, logger)
	return scanCSV(ctx, p.coord, sink, logger, batchCSV, batchKeywords, batchPoll)
}

// scanCSV runs one entry list through the coordinator and appends what matched.
func scanCSV(ctx context.Context, coord *batch.Service, sink export.Sink, logger *slog.Logger, path string, keywords []string, poll time.Duration) error {
	entries, stats, err := ingest.NewCSVReader(logger).ReadEntriesFile(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	logger.Info("entries loaded", "csv", path, "entries", stats.Accepted, "skipped", stats.Skipped)

	start := time.Now()
	handles, err := coord.SubmitBatch(ctx, entries, keywords)
	if err != nil {
		return err
	}

	statuses, err := awaitAll(ctx, coord, handles, poll)
	if err != nil {
		return err
	}

	var (
		results       []entity.SavedResult
		empty, failed int
	)
	for _, st := range statuses {
		switch {
		case st.State == constants.TaskStateFailed:
			failed++
			logger.Warn("task failed", "task_id", st.Handle, "error", deref(st.Error))
		case st.Result == nil:
			empty++
		default:
			results = append(results, entity.SavedResult{ScanResult: *st.Result})
		}
	}

	logger.Info("batch finished",
		"csv", path,
		"entries", len(handles),
		"matched", len(results),
		"no_result", empty,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if len(results) == 0 {
		logger.Info("nothing to save", "csv", path)
		return nil
	}

	sum, err := sink.Append(ctx, results)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d of %d resumes matched; rows %d-%d written to %s\n",
		filepath.Base(path), len(results), len(handles), sum.FirstRow, sum.FirstRow+sum.Rows-1, sum.Path)
	return nil
}

// awaitAll polls until every task is terminal, preserving handle order.
func awaitAll(ctx context.Context, coord *batch.Service, handles []entity.TaskHandle, every time.Duration) ([]*entity.TaskStatus, error) {
	out := make([]*entity.TaskStatus, len(handles))
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		remaining := 0
		for i, h := range handles {
			if out[i] != nil {
				continue
			}
			st, err := coord.GetStatus(ctx, h)
			if err != nil {
				return nil, err
			}
			if st.State.IsTerminal() {
				out[i] = st
				continue
			}
			remaining++
		}
		if remaining == 0 {
			return out, nil
		}
		slog.Debug("waiting for tasks", "remaining", remaining)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
