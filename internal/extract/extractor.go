package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/resume-scanner/constants"
)

type Config struct {
	Pdfinfo   string // binary name or absolute path; if empty -> "pdfinfo"
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	// OCRFallback rasterizes and OCRs PDFs whose text layer is empty (scanned resumes).
	OCRFallback   bool
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	WorkDir string // temp files go here; "" = os.TempDir()
}

// Extractor dispatches on document format. It is safe for concurrent use.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var _ TextExtractor = (*Extractor)(nil)

type Option func(*Extractor)

// WithRunner replaces the command runner (tests).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract picks a strategy based on the detected format.
func (e *Extractor) Extract(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	format := DetectFormat(in)
	e.logger.Debug("starting text extraction", "url", in.URL, "format", format, "bytes", len(in.Body))

	var (
		res Result
		err error
	)
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, in.Body)
	case constants.HTML:
		res, err = extractHTML(in.Body)
	case constants.TXT:
		res = Result{Text: Normalize(string(in.Body)), Pages: 1, Method: "plain"}
	default:
		err = &Error{Stage: "detect", Cause: errors.New("unsupported document format")}
	}
	res.Format = format
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("error reading document", "url", in.URL, "format", format, "error", err)
		return res, err
	}
	if len(res.Warnings) > 0 {
		e.logger.Warn("extraction finished with warnings", "url", in.URL, "pages", res.Pages, "warnings", res.Warnings)
	}
	return res, nil
}

// DetectFormat uses the magic bytes first, then Content-Type, then the URL extension.
func DetectFormat(in Input) string {
	if bytes.HasPrefix(bytes.TrimLeft(in.Body, "\x00\t\r\n "), []byte("%PDF-")) {
		return constants.PDF
	}
	if f := constants.MapContentTypeToFormat(in.ContentType); f != "" {
		return f
	}
	if u, err := url.Parse(in.URL); err == nil {
		if f := constants.MapExtToFormat(path.Ext(u.Path)); f != "" {
			return f
		}
	}
	if len(in.Body) == 0 {
		return ""
	}
	if f := constants.MapContentTypeToFormat(http.DetectContentType(in.Body)); f != "" {
		return f
	}
	if utf8.Valid(in.Body) {
		return constants.TXT
	}
	return ""
}
