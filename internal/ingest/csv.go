package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// ErrMalformedRow is returned for a row with fewer than two columns.
var ErrMalformedRow = errors.New("row needs user_id and resume_link columns")

// CSVReader reads user_id,resume_link rows. Blank rows are skipped and a
// leading user_id,resume_link header is ignored.
type CSVReader struct {
	logger *slog.Logger
}

var _ EntryReader = (*CSVReader)(nil)

func NewCSVReader(logger *slog.Logger) *CSVReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVReader{logger: logger}
}

func (c *CSVReader) ReadEntries(ctx context.Context, r io.Reader) ([]entity.DocumentEntry, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		out   []entity.DocumentEntry
		stats Stats
	)
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read csv: %w", err)
		}
		stats.Rows++
		line, _ := cr.FieldPos(0)

		if first && len(rec) > 0 {
			rec[0] = stripBOM(rec[0])
		}
		if isBlank(rec) {
			stats.Skipped++
			continue
		}
		if len(rec) < 2 {
			return nil, stats, fmt.Errorf("csv line %d: %w", line, ErrMalformedRow)
		}
		userID, link := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if first && isHeader(userID, link) {
			stats.Skipped++
			continue
		}
		out = append(out, entity.DocumentEntry{UserID: userID, ResumeURL: link})
		stats.Accepted++
	}

	c.logger.Info("read entry list", "rows", stats.Rows, "accepted", stats.Accepted, "skipped", stats.Skipped)
	return out, stats, nil
}

// ReadEntriesFile reads an entry list from disk.
func (c *CSVReader) ReadEntriesFile(ctx context.Context, path string) ([]entity.DocumentEntry, Stats, error) {
	if !AllowedUpload(path) {
		return nil, Stats{}, fmt.Errorf("%s: file type not allowed", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()
	return c.ReadEntries(ctx, f)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isHeader(userID, link string) bool {
	return strings.EqualFold(userID, "user_id") &&
		(strings.EqualFold(link, "resume_link") || strings.EqualFold(link, "resume_url"))
}
