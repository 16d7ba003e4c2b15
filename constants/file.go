package constants

import (
	"mime"
	"strings"
)

// Document formats understood by the text extractor.
const (
	PDF  = "PDF"
	HTML = "HTML"
	TXT  = "TXT"
)

// AllowedExtensions maps URL path extensions to a document format.
var AllowedExtensions = map[string]string{
	"pdf":  PDF,
	"htm":  HTML,
	"html": HTML,
	"txt":  TXT,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the format for an extension, or "" when unknown.
func MapExtToFormat(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}

// MapContentTypeToFormat returns the format for a Content-Type header value, or "".
func MapContentTypeToFormat(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "application/pdf", "application/x-pdf":
		return PDF
	case "text/html", "application/xhtml+xml":
		return HTML
	case "text/plain":
		return TXT
	default:
		return ""
	}
}
