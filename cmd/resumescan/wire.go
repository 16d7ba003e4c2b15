package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/resume-scanner/internal/batch"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/core"
	queue "github.com/joseph-ayodele/resume-scanner/internal/core/async"
	"github.com/joseph-ayodele/resume-scanner/internal/extract"
	"github.com/joseph-ayodele/resume-scanner/internal/fetch"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
	"github.com/joseph-ayodele/resume-scanner/internal/server"
)

// pipeline is every long-lived component shared by serve and batch.
type pipeline struct {
	store *server.Store
	queue *queue.ProcessorQueue
	coord *batch.Service
}

func buildPipeline(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*pipeline, error) {
	vocab, err := match.LoadVocabulary(cfg.Vocabulary.File)
	if err != nil {
		return nil, err
	}
	logger.Info("vocabulary loaded", "terms", vocab.Len(), "file", cfg.Vocabulary.File)

	store, err := server.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open status store: %w", err)
	}

	fetcher := fetch.NewFetcher(fetchConfig(cfg), logger)
	extractor := extract.NewExtractor(extractConfig(cfg), logger)
	proc := core.NewProcessor(logger, fetcher, extractor, match.NewMatcher(vocab, logger))

	q := queue.NewProcessorQueue(proc, store, logger,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithQueueSize(cfg.Queue.Size),
		queue.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	return &pipeline{
		store: store,
		queue: q,
		coord: batch.NewService(q, store, logger),
	}, nil
}

// close drains the workers before the store goes away. The store stays open
// when the drain is cut short so running tasks can still record their outcome.
func (p *pipeline) close(ctx context.Context, logger *slog.Logger) {
	if err := p.queue.Shutdown(ctx); err != nil {
		logger.Warn("leaving status store open, tasks still running", "error", err)
		return
	}
	p.store.Close(logger)
}

func fetchConfig(cfg *common.Config) fetch.Config {
	return fetch.Config{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		RateLimit: cfg.Fetch.RateLimit,
		Burst:     cfg.Fetch.Burst,
		UserAgent: cfg.Fetch.UserAgent,
	}
}

func extractConfig(cfg *common.Config) extract.Config {
	return extract.Config{
		Pdfinfo:       cfg.Extract.Pdfinfo,
		Pdftotext:     cfg.Extract.Pdftotext,
		Pdftoppm:      cfg.Extract.Pdftoppm,
		Tesseract:     cfg.Extract.Tesseract,
		OCRFallback:   cfg.Extract.OCRFallback,
		TesseractLang: cfg.Extract.TesseractLang,
		DPI:           cfg.Extract.DPI,
		MaxPages:      cfg.Extract.MaxPages,
		WorkDir:       cfg.Extract.WorkDir,
	}
}
