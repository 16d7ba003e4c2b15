package ingest

import (
	"path/filepath"
	"strings"
)

// AllowedUpload reports whether name carries the .csv extension.
func AllowedUpload(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}

// stripBOM drops a UTF-8 byte order mark that spreadsheet exports often prepend.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
