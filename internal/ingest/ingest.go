package ingest

import (
	"context"
	"io"

	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// Stats summarizes one entry-list read.
type Stats struct {
	Rows     int
	Accepted int
	Skipped  int
}

// EntryReader turns an uploaded list into document entries.
type EntryReader interface {
	ReadEntries(ctx context.Context, r io.Reader) ([]entity.DocumentEntry, Stats, error)
}
