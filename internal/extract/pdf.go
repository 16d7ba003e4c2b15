package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// extractPDF reads the text layer page by page. A page that fails is recorded as a
// warning and skipped; the document only fails when pdfinfo rejects it or when no
// page could be read at all.
func (e *Extractor) extractPDF(ctx context.Context, body []byte) (Result, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.WorkDir, "rs-pdf-*")
	if err != nil {
		return Result{}, &Error{Stage: "io", Cause: err}
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	path := filepath.Join(tmpDir, "document.pdf")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return Result{}, &Error{Stage: "io", Cause: err}
	}

	pages, err := e.pdfPageCount(ctx, path)
	if err != nil {
		return Result{}, &Error{Stage: "pdf", Cause: err}
	}
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}

	text, warns, ok := e.pdfToText(ctx, path, pages)
	if !ok {
		return Result{Pages: pages, Warnings: warns}, &Error{Stage: "pdf", Cause: fmt.Errorf("no readable pages out of %d", pages)}
	}
	res := Result{Text: Normalize(text), Pages: pages, Method: "pdf-text", Warnings: warns}

	if res.Text == "" && e.cfg.OCRFallback {
		e.logger.Debug("pdf has no text layer, falling back to ocr", "pages", pages)
		ocrText, ocrWarns, err := e.pdfToOCR(ctx, path, tmpDir)
		res.Warnings = append(res.Warnings, ocrWarns...)
		if err != nil {
			return res, &Error{Stage: "ocr", Cause: err}
		}
		res.Text = Normalize(ocrText)
		res.Method = "pdf-ocr"
	}
	return res, nil
}

func (e *Extractor) pdfPageCount(ctx context.Context, path string) (int, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdfinfo, path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: bad page count %q", line)
		}
		if n <= 0 {
			return 0, errors.New("pdfinfo: document has no pages")
		}
		return n, nil
	}
	return 0, errors.New("pdfinfo: page count missing")
}

// pdfToText concatenates pages in page order. ok is false when every page failed.
func (e *Extractor) pdfToText(ctx context.Context, path string, pages int) (string, []string, bool) {
	var (
		b     strings.Builder
		warns []string
		read  int
	)
	for p := 1; p <= pages; p++ {
		n := strconv.Itoa(p)
		// pdftotext -f N -l N -layout -enc UTF-8 -eol unix <path> -
		out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-f", n, "-l", n, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v: %s", p, err, strings.TrimSpace(string(errb))))
			continue
		}
		read++
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimRight(string(out), "\f"))
	}
	return b.String(), warns, read > 0
}

func (e *Extractor) pdfToOCR(ctx context.Context, path, tmpDir string) (string, []string, error) {
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("pdftoppm: %w", err)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", []string{"pdftoppm produced no images"}, errors.New("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, err := e.tesseractOCR(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(txt))
	}
	return b.String(), warns, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(string(errb)))
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
