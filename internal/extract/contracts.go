package extract

import (
	"context"
	"fmt"
	"time"
)

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, in Input) (Result, error)
}

// Input is a downloaded document. ContentType and URL are only format hints.
type Input struct {
	URL         string
	ContentType string
	Body        []byte
}

type Result struct {
	Text     string
	Pages    int
	Format   string // constants.PDF | constants.HTML | constants.TXT
	Method   string // "pdf-text" | "pdf-ocr" | "html" | "plain"
	Duration time.Duration
	Warnings []string
}

// Error marks a document that could not be parsed. Callers treat it as "no usable text".
type Error struct {
	Stage string // "detect" | "pdf" | "ocr" | "html" | "io"
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("extract (%s): %v", e.Stage, e.Cause) }

func (e *Error) Unwrap() error { return e.Cause }
