package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/extract"
	"github.com/joseph-ayodele/resume-scanner/internal/fetch"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
)

const tracerName = "github.com/joseph-ayodele/resume-scanner/internal/core"

// DocumentFetcher downloads one resume.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
}

// KeywordMatcher scores extracted text against the batch keywords.
type KeywordMatcher interface {
	Match(text string, keywords *match.KeywordSet, totalKeywords int) (match.Stats, error)
}

// ScanTask is one document of a batch together with the batch's keyword set.
// Compiled is shared by all tasks of a batch; when nil the task compiles Keywords itself.
type ScanTask struct {
	Handle        entity.TaskHandle
	Entry         entity.DocumentEntry
	Keywords      []string
	Compiled      *match.KeywordSet
	TotalKeywords int
}

// Stage names a step of the per-document pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageMatch   Stage = "match"
	StagePanic   Stage = "panic"
)

// InternalError is an unexpected fault inside a task. Fetch and extract failures
// are not internal errors; they end the task without a result.
type InternalError struct {
	Stage Stage
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Stage, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// Is matches common.ErrInternal.
func (e *InternalError) Is(target error) bool { return target == common.ErrInternal }

// Processor runs Fetch, Extract and Match for one document.
type Processor struct {
	logger    *slog.Logger
	fetcher   DocumentFetcher
	extractor extract.TextExtractor
	matcher   KeywordMatcher
	tracer    trace.Tracer
}

type ProcessorOption func(*Processor)

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

func NewProcessor(
	logger *slog.Logger,
	fetcher DocumentFetcher,
	extractor extract.TextExtractor,
	matcher KeywordMatcher,
	opts ...ProcessorOption,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:    logger,
		fetcher:   fetcher,
		extractor: extractor,
		matcher:   matcher,
		tracer:    otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process returns the task's ScanResult, or nil when the document could not be
// fetched, had no usable text, or matched no keyword. A non-nil error is always
// an *InternalError; that includes fetch and extract failures caused by ctx ending.
func (p *Processor) Process(ctx context.Context, task ScanTask) (*entity.ScanResult, error) {
	ctx, span := p.tracer.Start(ctx, "scan_task",
		trace.WithAttributes(
			attribute.String("task.id", task.Handle.String()),
			attribute.String("user.id", task.Entry.UserID),
			attribute.String("resume.url", task.Entry.ResumeURL),
			attribute.Int("keywords.total", task.TotalKeywords),
		))
	defer span.End()

	start := time.Now()
	log := p.logger.With("task_id", task.Handle, "user_id", task.Entry.UserID, "url", task.Entry.ResumeURL)

	// 1) fetch
	doc, err := p.fetch(ctx, task.Entry.ResumeURL)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, p.internal(ctx, span, StageFetch, fmt.Errorf("%w: %w", cerr, err))
		}
		var fe *fetch.Error
		if errors.As(err, &fe) {
			log.Warn("skipping document: download failed", "status", fe.StatusCode, "error", err)
			span.SetAttributes(attribute.String("scan.outcome", "no_document"))
			return nil, nil
		}
		return nil, p.internal(ctx, span, StageFetch, err)
	}

	// 2) extract
	text, err := p.extract(ctx, doc)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, p.internal(ctx, span, StageExtract, fmt.Errorf("%w: %w", cerr, err))
		}
		var xe *extract.Error
		if errors.As(err, &xe) {
			log.Warn("skipping document: text extraction failed", "stage", xe.Stage, "error", err)
			span.SetAttributes(attribute.String("scan.outcome", "no_text"))
			return nil, nil
		}
		return nil, p.internal(ctx, span, StageExtract, err)
	}
	if text == "" {
		log.Info("skipping document: no text extracted")
		span.SetAttributes(attribute.String("scan.outcome", "no_text"))
		return nil, nil
	}

	// 3) match
	_, mspan := p.tracer.Start(ctx, "scan_task.match")
	stats, err := p.match(text, task)
	mspan.End()
	if err != nil {
		return nil, p.internal(ctx, span, StageMatch, err)
	}
	span.SetAttributes(
		attribute.Int("match.count", stats.MatchCount),
		attribute.Float64("match.percentage", stats.Percentage),
	)
	if stats.MatchCount == 0 {
		log.Info("document matched no keywords", "vocabulary_present", len(stats.PresentVocabulary))
		span.SetAttributes(attribute.String("scan.outcome", "no_match"))
		return nil, nil
	}

	log.Info("document scanned",
		"matched", stats.MatchCount,
		"percentage", stats.Percentage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	span.SetAttributes(attribute.String("scan.outcome", "matched"))
	return &entity.ScanResult{
		UserID:            task.Entry.UserID,
		ResumeURL:         task.Entry.ResumeURL,
		Percentage:        stats.Percentage,
		MatchedKeywords:   stats.MatchedKeywords,
		PresentVocabulary: stats.PresentVocabulary,
	}, nil
}

func (p *Processor) match(text string, task ScanTask) (match.Stats, error) {
	ks := task.Compiled
	if ks == nil {
		var err error
		if ks, err = match.CompileKeywords(task.Keywords); err != nil {
			return match.Stats{}, err
		}
	}
	return p.matcher.Match(text, ks, task.TotalKeywords)
}

func (p *Processor) fetch(ctx context.Context, url string) (*fetch.Document, error) {
	ctx, span := p.tracer.Start(ctx, "scan_task.fetch")
	defer span.End()

	doc, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.bytes", len(doc.Body)))
	return doc, nil
}

func (p *Processor) extract(ctx context.Context, doc *fetch.Document) (string, error) {
	ctx, span := p.tracer.Start(ctx, "scan_task.extract")
	defer span.End()

	res, err := p.extractor.Extract(ctx, extract.Input{URL: doc.URL, ContentType: doc.ContentType, Body: doc.Body})
	span.SetAttributes(
		attribute.String("document.format", res.Format),
		attribute.Int("document.pages", res.Pages),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		return "", err
	}
	return res.Text, nil
}

func (p *Processor) internal(ctx context.Context, span trace.Span, stage Stage, err error) error {
	ie := &InternalError{Stage: stage, Cause: err}
	span.RecordError(ie)
	span.SetStatus(codes.Error, ie.Error())
	common.LoggerFromContext(ctx, p.logger).Error("scan task fault", "stage", stage, "error", err)
	return ie
}
