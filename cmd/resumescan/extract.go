package main

import (
	"context"
	"encoding/json"
	"io"
		"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/resume-scanner/internal/extract"
	"github.com/joseph-ayodele/resume-scanner/internal/fetch"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
)

var (
	extractKeywords []string
	extractShowText bool

	extractCmd = &cobra.Command{
		Use:   "extract <url-or-file>",
		Short: "Extract one resume synchronously and print its match statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
)

func init() {
	extractCmd.Flags().StringSliceVar(&extractKeywords, "keywords", nil, "comma-separated keywords to match")
	extractCmd.Flags().BoolVar(&extractShowText, "text", false, "print the extracted text")
}

type extractReport struct {
	Source     string       `json:"source"`
	Format     string       `json:"format"`
	Method     string       `json:"method"`
	Pages      int          `json:"pages"`
	Chars      int          `json:"chars"`
	Warnings   []string     `json:"warnings,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Match      *match.Stats `json:"match,omitempty"`
	Text       string       `json:"text,omitempty"`
}

func runExtract(ctx context.Context, src string, w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	in := extract.Input{URL: src}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		doc, err := fetch.NewFetcher(fetchConfig(cfg), logger).Fetch(ctx, src)
		if err != nil {
			return err
		}
		in.ContentType, in.Body = doc.ContentType, doc.Body
	} else {
		if in.Body, err = os.ReadFile(src); err != nil {
			return err
		}
	}

	x := extract.NewExtractor(extractConfig(cfg), logger)
	res, err := x.Extract(ctx, in)
	if err != nil {
		return err
	}

	rep := extractReport{
		Source:     src,
		Format:     res.Format,
		Method:     res.Method,
		Pages:      res.Pages,
		Chars:      len(res.Text),
		Warnings:   res.Warnings,
		DurationMS: res.Duration.Milliseconds(),
	}
	if extractShowText {
		rep.Text = res.Text
	}
	if len(extractKeywords) > 0 {
		vocab, err := match.LoadVocabulary(cfg.Vocabulary.File)
		if err != nil {
			return err
		}
		ks, err := match.CompileKeywords(extractKeywords)
		if err != nil {
			return err
		}
		st, err := match.NewMatcher(vocab, logger).Match(res.Text, ks, ks.Len())
		if err != nil {
			return err
		}
		rep.Match = &st
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
