package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

func saved(user string, checked bool, pct float64, matched, present []string) entity.SavedResult {
	return entity.SavedResult{
		ScanResult: entity.ScanResult{
			UserID:            user,
			ResumeURL:         "https://x/" + user + ".pdf",
			Percentage:        pct,
			MatchedKeywords:   matched,
			PresentVocabulary: present,
		},
		Checked: checked,
	}
}

func readRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestAppend_CreatesWorkbookWithHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	svc := NewService(path, "", nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	sum, err := svc.Append(context.Background(), []entity.SavedResult{
		saved("u1", true, 50, []string{"Python"}, []string{"Python", "SQL"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FirstRow)
	assert.Equal(t, 1, sum.Rows)

	rows := readRows(t, path, "Sheet1")
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-03-01 09:30:00", "u1", "https://x/u1.pdf", "Yes", "50", "Python", "Python, SQL"}, rows[1])
}

func TestAppend_AppendsBelowExistingRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.xlsx")
	svc := NewService(path, "Scans", nil)

	_, err := svc.Append(context.Background(), []entity.SavedResult{saved("u1", true, 50, []string{"Go"}, nil)})
	require.NoError(t, err)
	sum, err := svc.Append(context.Background(), []entity.SavedResult{
		saved("u2", false, 33.33, []string{"Go"}, []string{"Docker"}),
		saved("u3", true, 100, []string{"Go", "Rust"}, []string{}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.FirstRow)

	rows := readRows(t, path, "Scans")
	require.Len(t, rows, 4)
	assert.Equal(t, "u2", rows[2][1])
	assert.Equal(t, "No", rows[2][3])
	assert.Equal(t, "33.33", rows[2][4])
	assert.Equal(t, "Go, Rust", rows[3][5])
	// header written once
	assert.Equal(t, "Timestamp", rows[0][0])
	assert.Equal(t, "u1", rows[1][1])
}

func TestAppend_NoResults(t *testing.T) {
	t.Parallel()

	svc := NewService(filepath.Join(t.TempDir(), "results.xlsx"), "", nil)
	_, err := svc.Append(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoResults)
	assert.True(t, common.IsValidation(err))
}
