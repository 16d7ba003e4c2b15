package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Error is returned for any failed retrieval. Callers treat it as "no document".
type Error struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Document is the raw payload of a downloaded resume.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
}

type Config struct {
	Timeout   time.Duration // whole request bound, default 30s
	MaxBytes  int64         // body cap, default 20MiB
	RateLimit float64       // requests per second across all workers, 0 = unlimited
	Burst     int
	UserAgent string
}

// Fetcher downloads resumes with a single bounded attempt.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Option func(*Fetcher)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func NewFetcher(cfg Config, logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "resume-scanner/1.0"
	}
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch performs one GET. Transport errors, timeouts and non-2xx statuses all
// come back as *Error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	start := time.Now()
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, f.fail(&Error{URL: url, Cause: fmt.Errorf("rate limit wait: %w", err)})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, f.fail(&Error{URL: url, Cause: fmt.Errorf("build request: %w", err)})
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(&Error{URL: url, Cause: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, f.fail(&Error{URL: url, StatusCode: resp.StatusCode})
	}

	// read one byte past the cap so oversized bodies are detected
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, f.fail(&Error{URL: url, Cause: fmt.Errorf("read body: %w", err)})
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, f.fail(&Error{URL: url, Cause: fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes)})
	}

	f.logger.Debug("fetched document",
		"url", url,
		"bytes", len(body),
		"content_type", resp.Header.Get("Content-Type"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Document{URL: url, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

func (f *Fetcher) fail(err *Error) error {
	f.logger.Error("error downloading document", "url", err.URL, "status", err.StatusCode, "error", err.Cause)
	return err
}
