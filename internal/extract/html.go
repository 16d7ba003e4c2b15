package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const htmlBlocks = "p, li, br, div, section, article, header, footer, h1, h2, h3, h4, h5, h6, tr, td, th, dt, dd, pre, blockquote"

// extractHTML returns the visible text of an HTML resume. Block elements end with a
// newline so adjacent items ("<li>Go</li><li>SQL</li>") stay separate words.
func extractHTML(body []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Stage: "html", Cause: err}
	}
	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find(htmlBlocks).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	if body := doc.Find("body"); body.Length() > 0 {
		text = body.Text()
	}
	return Result{Text: Normalize(strings.TrimSpace(text)), Pages: 1, Method: "html"}, nil
}
