package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// TimestampLayout is how the save time is written into every row.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of a fresh sheet.
var Header = []string{
	"Timestamp",
	"User ID",
	"Resume Link",
	"Checked",
	"Percentage",
	"Matched Technologies",
	"Existing Technologies",
}

// ErrNoResults is returned when there is nothing to append.
var ErrNoResults = fmt.Errorf("%w: no results to save", common.ErrInvalidInput)

// Sink receives finalized scan results.
type Sink interface {
	Append(ctx context.Context, results []entity.SavedResult) (Summary, error)
}

// Summary describes one append.
type Summary struct {
	Path     string
	Sheet    string
	FirstRow int
	Rows     int
	SavedAt  time.Time
}

// Service appends results to an XLSX workbook on disk, creating it on first use.
type Service struct {
	path   string
	sheet  string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

var _ Sink = (*Service)(nil)

func NewService(path, sheet string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Service{path: path, sheet: sheet, logger: logger, now: time.Now}
}

// Append writes one row per result, all stamped with the same save time.
func (s *Service) Append(ctx context.Context, results []entity.SavedResult) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, ErrNoResults
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	f, err := s.open()
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close workbook", "path", s.path, "error", cerr)
		}
	}()

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return Summary{}, fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}
	next := len(rows) + 1
	if len(rows) == 0 {
		if err := s.writeRow(f, 1, toCells(Header)); err != nil {
			return Summary{}, err
		}
		s.layout(f)
		next = 2
	}

	saved := s.now()
	stamp := saved.Format(TimestampLayout)
	for i, r := range results {
		checked := "No"
		if r.Checked {
			checked = "Yes"
		}
		row := []any{
			stamp,
			r.UserID,
			r.ResumeURL,
			checked,
			r.Percentage,
			strings.Join(r.MatchedKeywords, ", "),
			strings.Join(r.PresentVocabulary, ", "),
		}
		if err := s.writeRow(f, next+i, row); err != nil {
			return Summary{}, err
		}
	}

	if err := f.SaveAs(s.path); err != nil {
		return Summary{}, fmt.Errorf("xlsx write: %w", err)
	}

	sum := Summary{Path: s.path, Sheet: s.sheet, FirstRow: next, Rows: len(results), SavedAt: saved}
	s.logger.Info("results appended",
		"path", s.path,
		"sheet", s.sheet,
		"first_row", sum.FirstRow,
		"rows", sum.Rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func (s *Service) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		f = excelize.NewFile()
	default:
		return nil, fmt.Errorf("open workbook %s: %w", s.path, err)
	}

	if index, _ := f.GetSheetIndex(s.sheet); index == -1 {
		index, err = f.NewSheet(s.sheet)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.SetActiveSheet(index)
	}
	return f, nil
}

func (s *Service) writeRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(s.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// Widen a few columns
func (s *Service) layout(f *excelize.File) {
	_ = f.SetColWidth(s.sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(s.sheet, "B", "B", 14) // user
	_ = f.SetColWidth(s.sheet, "C", "C", 48) // link
	_ = f.SetColWidth(s.sheet, "D", "E", 12) // checked, percentage
	_ = f.SetColWidth(s.sheet, "F", "G", 60) // technologies
}

func toCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
