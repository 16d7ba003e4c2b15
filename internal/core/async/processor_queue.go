package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/core"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/repository"
)

// TaskProcessor runs a single ScanTask to completion.
type TaskProcessor interface {
	Process(ctx context.Context, task core.ScanTask) (*entity.ScanResult, error)
}

// ProcessorQueue is a fixed worker pool fed by a buffered channel. Submission
// never waits on the workers: when the buffer is full the hand-off continues in
// the background.
type ProcessorQueue struct {
	proc    TaskProcessor
	store   repository.TaskStatusStore
	logger  *slog.Logger
	workers int
	timeout time.Duration
	metrics QueueMetrics

	ch     chan core.ScanTask
	wg     sync.WaitGroup
	sendWG sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	closed  bool
	drained chan struct{}
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan core.ScanTask, n)
		}
	}
}

// WithProcessTimeout bounds each task. Zero, the default, lets a task run to completion.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithMetrics replaces the instruments registered with the global meter provider.
func WithMetrics(m QueueMetrics) Option {
	return func(q *ProcessorQueue) {
		if m != nil {
			q.metrics = m
		}
	}
}

func NewProcessorQueue(proc TaskProcessor, store repository.TaskStatusStore, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		store:   store,
		logger:  logger,
		workers: 4,
		ch:      make(chan core.ScanTask, 256),
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		m, err := NewQueueMetrics(otel.GetMeterProvider())
		if err != nil {
			logger.Warn("queue metrics disabled", "error", err)
			m, _ = NewQueueMetrics(noop.NewMeterProvider())
		}
		q.metrics = m
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for task := range q.ch {
					q.run(workerID, task)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, task core.ScanTask) {
	ctx := common.WithTaskID(context.Background(), task.Handle.String())
	log := q.logger.With("worker_id", workerID, "task_id", task.Handle)

	if err := q.store.RecordState(ctx, task.Handle, constants.TaskStateRunning); err != nil {
		log.Error("failed to mark task running", "error", err)
	}

	var cancel context.CancelFunc = func() {}
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
	}
	start := time.Now()
	q.metrics.TrackActive(ctx, 1)
	res, err := q.process(ctx, task)
	q.metrics.TrackActive(ctx, -1)
	cancel()

	// terminal writes must not inherit the task deadline
	ctx = context.WithoutCancel(ctx)
	switch {
	case err != nil:
		q.metrics.ObserveTask(ctx, OutcomeFailed, time.Since(start))
	case res == nil:
		q.metrics.ObserveTask(ctx, OutcomeNoResult, time.Since(start))
	default:
		q.metrics.ObserveTask(ctx, OutcomeResult, time.Since(start))
	}
	if err != nil {
		log.Error("task failed", "error", err)
		if serr := q.store.RecordResult(ctx, task.Handle, constants.TaskStateFailed, nil, err.Error()); serr != nil {
			log.Error("failed to record task failure", "error", serr)
		}
		return
	}
	if serr := q.store.RecordResult(ctx, task.Handle, constants.TaskStateSucceeded, res, ""); serr != nil {
		log.Error("failed to record task result", "error", serr)
		return
	}
	log.Info("task finished", "has_result", res != nil)
}

func (q *ProcessorQueue) process(ctx context.Context, task core.ScanTask) (res *entity.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "task_id", task.Handle, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, &core.InternalError{Stage: core.StagePanic, Cause: fmt.Errorf("%v", r)}
		}
	}()
	return q.proc.Process(ctx, task)
}

// Submit records the task as Pending and queues it. A task without a handle gets a new one.
func (q *ProcessorQueue) Submit(ctx context.Context, task core.ScanTask) (entity.TaskHandle, error) {
	handles, err := q.SubmitAll(ctx, []core.ScanTask{task})
	if err != nil {
		return "", err
	}
	return handles[0], nil
}

func (q *ProcessorQueue) SubmitAll(ctx context.Context, tasks []core.ScanTask) ([]entity.TaskHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot submit: queue is shutting down", "tasks", len(tasks))
		return nil, common.ErrQueueClosed
	}

	handles := make([]entity.TaskHandle, len(tasks))
	for i := range tasks {
		if tasks[i].Handle == "" {
			tasks[i].Handle = entity.NewTaskHandle()
		}
		if err := q.store.RecordState(ctx, tasks[i].Handle, constants.TaskStatePending); err != nil {
			q.abandon(ctx, handles[:i], err)
			return nil, fmt.Errorf("register task %s: %w", tasks[i].Handle, err)
		}
		handles[i] = tasks[i].Handle
	}

	for _, t := range tasks {
		q.enqueue(t)
	}
	q.metrics.AddSubmitted(ctx, len(tasks))
	q.logger.Info("queued tasks for processing", "tasks", len(tasks), "queue_depth", len(q.ch))
	return handles, nil
}

// enqueue must be called with q.mu held so Shutdown cannot close the channel under it.
func (q *ProcessorQueue) enqueue(task core.ScanTask) {
	select {
	case q.ch <- task:
	default:
		q.logger.Warn("queue full, handing off in background", "task_id", task.Handle)
		q.sendWG.Add(1)
		go func() {
			defer q.sendWG.Done()
			q.ch <- task
		}()
	}
}

// abandon fails tasks that were registered before a later registration broke the submission.
func (q *ProcessorQueue) abandon(ctx context.Context, handles []entity.TaskHandle, cause error) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range handles {
		msg := fmt.Sprintf("submission aborted: %v", cause)
		if err := q.store.RecordResult(ctx, h, constants.TaskStateFailed, nil, msg); err != nil {
			q.logger.Error("failed to abandon task", "task_id", h, "error", err)
		}
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. It
// returns ctx's error if workers are still running when ctx ends; calling it
// again keeps waiting on the same drain.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.drained = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			q.sendWG.Wait()
			close(q.ch)
			q.wg.Wait()
		}(q.drained)
	}
	done := q.drained
	q.mu.Unlock()

	select {
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted before workers finished", "error", ctx.Err())
		return fmt.Errorf("drain queue: %w", ctx.Err())
	}
}
