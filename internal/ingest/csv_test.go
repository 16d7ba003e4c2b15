package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

func TestReadEntries(t *testing.T) {
	t.Parallel()

	in := "\ufeffuser_id,resume_link\n" +
		"u1,https://x/a.pdf\n" +
		"\n" +
		" u2 , https://x/b.pdf ,extra\n"

	entries, stats, err := NewCSVReader(nil).ReadEntries(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []entity.DocumentEntry{
		{UserID: "u1", ResumeURL: "https://x/a.pdf"},
		{UserID: "u2", ResumeURL: "https://x/b.pdf"},
	}, entries)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Skipped)
}

func TestReadEntries_WithoutHeader(t *testing.T) {
	t.Parallel()

	entries, _, err := NewCSVReader(nil).ReadEntries(context.Background(), strings.NewReader("u1,https://x/a.pdf\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []entity.DocumentEntry{{UserID: "u1", ResumeURL: "https://x/a.pdf"}}, entries)
}

func TestReadEntries_ShortRow(t *testing.T) {
	t.Parallel()

	_, _, err := NewCSVReader(nil).ReadEntries(context.Background(), strings.NewReader("u1,https://x/a.pdf\nu2\n"))
	require.ErrorIs(t, err, ErrMalformedRow)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadEntriesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "list.CSV")
	require.NoError(t, os.WriteFile(good, []byte("u1,https://x/a.pdf\n"), 0o600))
	entries, _, err := NewCSVReader(nil).ReadEntriesFile(context.Background(), good)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, _, err = NewCSVReader(nil).ReadEntriesFile(context.Background(), filepath.Join(dir, "list.txt"))
	assert.Error(t, err)
}

func TestAllowedUpload(t *testing.T) {
	t.Parallel()

	assert.True(t, AllowedUpload("entries.csv"))
	assert.True(t, AllowedUpload("ENTRIES.CSV"))
	assert.False(t, AllowedUpload("entries.xlsx"))
	assert.False(t, AllowedUpload(""))
}
