package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/extract"
	"github.com/joseph-ayodele/resume-scanner/internal/fetch"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
)

type fetchFunc func(ctx context.Context, url string) (*fetch.Document, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (*fetch.Document, error) { return f(ctx, url) }

type extractFunc func(ctx context.Context, in extract.Input) (extract.Result, error)

func (f extractFunc) Extract(ctx context.Context, in extract.Input) (extract.Result, error) {
	return f(ctx, in)
}

func okFetch(body string) fetchFunc {
	return func(_ context.Context, url string) (*fetch.Document, error) {
		return &fetch.Document{URL: url, ContentType: "application/pdf", Body: []byte(body)}, nil
	}
}

func textExtract(text string) extractFunc {
	return func(_ context.Context, in extract.Input) (extract.Result, error) {
		return extract.Result{Text: text, Pages: 1, Format: "pdf"}, nil
	}
}

func newMatcher(t *testing.T) *match.Matcher {
	t.Helper()
	vocab, err := match.DefaultVocabulary()
	require.NoError(t, err)
	return match.NewMatcher(vocab, nil)
}

func sampleTask() ScanTask {
	return ScanTask{
		Handle:        entity.NewTaskHandle(),
		Entry:         entity.DocumentEntry{UserID: "u1", ResumeURL: "https://x/resume.pdf"},
		Keywords:      []string{"Python", "Go"},
		TotalKeywords: 2,
	}
}

func TestProcess_MatchProducesResult(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	p := NewProcessor(nil, okFetch("%PDF-1.4"), textExtract("I know Python well"), newMatcher(t), WithTracer(tp.Tracer("test")))

	res, err := p.Process(context.Background(), sampleTask())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "https://x/resume.pdf", res.ResumeURL)
	assert.InDelta(t, 50.00, res.Percentage, 1e-9)
	assert.Equal(t, []string{"Python"}, res.MatchedKeywords)
	assert.Contains(t, res.PresentVocabulary, "Python")

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"scan_task", "scan_task.fetch", "scan_task.extract", "scan_task.match"}, names)
}

func TestProcess_FetchErrorIsEmptyOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	extractCalled := false
	ex := extractFunc(func(context.Context, extract.Input) (extract.Result, error) {
		extractCalled = true
		return extract.Result{}, nil
	})
	f := fetch.NewFetcher(fetch.Config{}, nil)
	p := NewProcessor(nil, f, ex, newMatcher(t))

	task := sampleTask()
	task.Entry.ResumeURL = srv.URL + "/resume.pdf"
	res, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, extractCalled)
}

func TestProcess_ExtractErrorIsEmptyOutcome(t *testing.T) {
	t.Parallel()

	ex := extractFunc(func(context.Context, extract.Input) (extract.Result, error) {
		return extract.Result{}, &extract.Error{Stage: "pdf", Cause: errors.New("corrupt xref")}
	})
	p := NewProcessor(nil, okFetch("%PDF-broken"), ex, newMatcher(t))

	res, err := p.Process(context.Background(), sampleTask())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestProcess_EmptyTextIsEmptyOutcome(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, okFetch("%PDF-1.4"), textExtract(""), newMatcher(t))

	res, err := p.Process(context.Background(), sampleTask())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestProcess_NoKeywordMatchIsEmptyOutcome(t *testing.T) {
	t.Parallel()

	// vocabulary terms are present but no batch keyword is
	p := NewProcessor(nil, okFetch("%PDF-1.4"), textExtract("Kubernetes and Azure"), newMatcher(t))

	res, err := p.Process(context.Background(), sampleTask())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestProcess_UnexpectedFetchFaultIsInternal(t *testing.T) {
	t.Parallel()

	f := fetchFunc(func(context.Context, string) (*fetch.Document, error) {
		return nil, errors.New("nil transport")
	})
	p := NewProcessor(nil, f, textExtract("Python"), newMatcher(t))

	res, err := p.Process(context.Background(), sampleTask())
	assert.Nil(t, res)
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageFetch, ie.Stage)
}

func TestProcess_InvalidTotalIsInternal(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, okFetch("%PDF-1.4"), textExtract("Python"), newMatcher(t))
	task := sampleTask()
	task.TotalKeywords = 0

	_, err := p.Process(context.Background(), task)
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageMatch, ie.Stage)
	assert.ErrorIs(t, err, match.ErrInvalidTotal)
	assert.ErrorIs(t, err, common.ErrInternal)
}

func TestProcess_TaskDeadlineIsInternal(t *testing.T) {
	t.Parallel()

	waitFetch := fetchFunc(func(ctx context.Context, url string) (*fetch.Document, error) {
		<-ctx.Done()
		return nil, &fetch.Error{URL: url, Cause: ctx.Err()}
	})
	waitExtract := extractFunc(func(ctx context.Context, in extract.Input) (extract.Result, error) {
		<-ctx.Done()
		return extract.Result{}, &extract.Error{Stage: "pdf", Cause: errors.New("signal: killed")}
	})

	tests := []struct {
		name  string
		proc  *Processor
		stage Stage
	}{
		{"fetch", NewProcessor(nil, waitFetch, textExtract("Python"), newMatcher(t)), StageFetch},
		{"extract", NewProcessor(nil, okFetch("%PDF-1.4"), waitExtract, newMatcher(t)), StageExtract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			res, err := tt.proc.Process(ctx, sampleTask())
			assert.Nil(t, res)
			var ie *InternalError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.stage, ie.Stage)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestProcess_UsesBatchKeywordSet(t *testing.T) {
	t.Parallel()

	ks, err := match.CompileKeywords([]string{"Go"})
	require.NoError(t, err)
	task := sampleTask()
	task.Compiled = ks

	p := NewProcessor(nil, okFetch("%PDF-1.4"), textExtract("Python and Go"), newMatcher(t))
	res, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"Go"}, res.MatchedKeywords)
	assert.Equal(t, 50.0, res.Percentage)
}
