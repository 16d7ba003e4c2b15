package async

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/core"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/extract"
	"github.com/joseph-ayodele/resume-scanner/internal/fetch"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
	"github.com/joseph-ayodele/resume-scanner/internal/repository"
)

type processFunc func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error)

func (f processFunc) Process(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
	return f(ctx, task)
}

func task(user string) core.ScanTask {
	return core.ScanTask{
		Entry:         entity.DocumentEntry{UserID: user, ResumeURL: "https://x/" + user + ".pdf"},
		Keywords:      []string{"Go"},
		TotalKeywords: 1,
	}
}

func waitTerminal(t *testing.T, store repository.TaskStatusStore, h entity.TaskHandle) *entity.TaskStatusRecord {
	t.Helper()
	var rec *entity.TaskStatusRecord
	require.Eventually(t, func() bool {
		r, err := store.Get(context.Background(), h)
		if err != nil {
			return false
		}
		rec = r
		return r.State.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestQueue_SubmitRecordsPendingBeforeReturning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		<-release
		return nil, nil
	})
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithWorkers(1))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	h, err := q.Submit(context.Background(), task("u1"))
	require.NoError(t, err)
	rec, err := store.Get(context.Background(), h)
	require.NoError(t, err)
	assert.Contains(t, []constants.TaskState{constants.TaskStatePending, constants.TaskStateRunning}, rec.State)

	close(release)
	rec = waitTerminal(t, store, h)
	assert.Equal(t, constants.TaskStateSucceeded, rec.State)
	assert.Nil(t, rec.Result)
}

func TestQueue_ResultAndFailureStates(t *testing.T) {
	t.Parallel()

	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		switch task.Entry.UserID {
		case "ok":
			return &entity.ScanResult{UserID: "ok", Percentage: 100, MatchedKeywords: []string{"Go"}, PresentVocabulary: []string{}}, nil
		case "boom":
			return nil, &core.InternalError{Stage: core.StageMatch, Cause: errors.New("boom")}
		default:
			panic("unexpected nil")
		}
	})
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithWorkers(2))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	handles, err := q.SubmitAll(context.Background(), []core.ScanTask{task("ok"), task("boom"), task("panic")})
	require.NoError(t, err)
	require.Len(t, handles, 3)

	ok := waitTerminal(t, store, handles[0])
	assert.Equal(t, constants.TaskStateSucceeded, ok.State)
	require.NotNil(t, ok.Result)
	assert.Equal(t, "ok", ok.Result.UserID)

	failed := waitTerminal(t, store, handles[1])
	assert.Equal(t, constants.TaskStateFailed, failed.State)
	require.NotNil(t, failed.ErrorInfo)
	assert.Contains(t, *failed.ErrorInfo, "boom")

	panicked := waitTerminal(t, store, handles[2])
	assert.Equal(t, constants.TaskStateFailed, panicked.State)
	require.NotNil(t, panicked.ErrorInfo)
	assert.Contains(t, *panicked.ErrorInfo, "unexpected nil")
}

func TestQueue_SubmitAllKeepsOrder(t *testing.T) {
	t.Parallel()

	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		return &entity.ScanResult{UserID: task.Entry.UserID}, nil
	})
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithWorkers(3))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	var tasks []core.ScanTask
	for i := 0; i < 10; i++ {
		tasks = append(tasks, task(fmt.Sprintf("u%d", i)))
	}
	handles, err := q.SubmitAll(context.Background(), tasks)
	require.NoError(t, err)

	seen := map[entity.TaskHandle]bool{}
	for i, h := range handles {
		assert.False(t, seen[h], "handle reused")
		seen[h] = true
		rec := waitTerminal(t, store, h)
		require.NotNil(t, rec.Result)
		assert.Equal(t, fmt.Sprintf("u%d", i), rec.Result.UserID)
	}
}

func TestQueue_FullBufferDoesNotBlockSubmit(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		<-release
		return nil, nil
	})
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithWorkers(1), WithQueueSize(1))

	done := make(chan []entity.TaskHandle)
	go func() {
		var tasks []core.ScanTask
		for i := 0; i < 5; i++ {
			tasks = append(tasks, task(fmt.Sprintf("u%d", i)))
		}
		hs, err := q.SubmitAll(context.Background(), tasks)
		assert.NoError(t, err)
		done <- hs
	}()

	var handles []entity.TaskHandle
	select {
	case handles = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitAll blocked on a full queue")
	}

	close(release)
	require.NoError(t, q.Shutdown(context.Background()))
	for _, h := range handles {
		rec, err := store.Get(context.Background(), h)
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStateSucceeded, rec.State)
	}
}

func TestQueue_ShutdownRejectsNewTasks(t *testing.T) {
	t.Parallel()

	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) { return nil, nil })
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil)
	require.NoError(t, q.Shutdown(context.Background()))
	require.NoError(t, q.Shutdown(context.Background()))

	_, err := q.Submit(context.Background(), task("late"))
	assert.ErrorIs(t, err, common.ErrQueueClosed)
	assert.Equal(t, 0, store.Len())
}

func TestQueue_ShutdownReportsUnfinishedDrain(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		close(started)
		<-release
		return nil, nil
	})
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithWorkers(1))

	h, err := q.Submit(context.Background(), task("u1"))
	require.NoError(t, err)
	<-started

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	err = q.Shutdown(expired)
	assert.ErrorIs(t, err, context.Canceled)

	rec, err := store.Get(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStateRunning, rec.State)

	close(release)
	require.NoError(t, q.Shutdown(context.Background()))
	rec, err = store.Get(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStateSucceeded, rec.State)
}

func TestQueue_ProcessTimeoutFailsTask(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("Python developer"))
	}))
	t.Cleanup(slow.Close)

	vocab, err := match.DefaultVocabulary()
	require.NoError(t, err)
	proc := core.NewProcessor(nil,
		fetch.NewFetcher(fetch.Config{}, nil),
		extract.NewExtractor(extract.Config{}, nil),
		match.NewMatcher(vocab, nil),
	)
	store := repository.NewMemoryStore()
	q := NewProcessorQueue(proc, store, nil, WithProcessTimeout(50*time.Millisecond))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	h, err := q.Submit(context.Background(), core.ScanTask{
		Entry:         entity.DocumentEntry{UserID: "u1", ResumeURL: slow.URL + "/cv.txt"},
		Keywords:      []string{"Python"},
		TotalKeywords: 1,
	})
	require.NoError(t, err)

	rec := waitTerminal(t, store, h)
	assert.Equal(t, constants.TaskStateFailed, rec.State)
	assert.Nil(t, rec.Result)
	require.NotNil(t, rec.ErrorInfo)
	assert.Contains(t, *rec.ErrorInfo, "deadline exceeded")
}

// failingStore rejects the Nth pending registration.
type failingStore struct {
	*repository.MemoryStore
	mu      sync.Mutex
	pending int
	failAt  int
}

func (s *failingStore) RecordState(ctx context.Context, h entity.TaskHandle, st constants.TaskState) error {
	if st == constants.TaskStatePending {
		s.mu.Lock()
		s.pending++
		n := s.pending
		s.mu.Unlock()
		if n == s.failAt {
			return errors.New("store unavailable")
		}
	}
	return s.MemoryStore.RecordState(ctx, h, st)
}

func TestQueue_SubmitAllIsAllOrNothing(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	proc := processFunc(func(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error) {
		ran.Add(1)
		return nil, nil
	})
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), failAt: 3}
	q := NewProcessorQueue(proc, store, nil)

	tasks := []core.ScanTask{task("a"), task("b"), task("c")}
	handles, err := q.SubmitAll(context.Background(), tasks)
	require.Error(t, err)
	assert.Nil(t, handles)

	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int32(0), ran.Load())

	for _, tk := range tasks[:2] {
		rec, err := store.Get(context.Background(), tk.Handle)
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStateFailed, rec.State)
	}
}
