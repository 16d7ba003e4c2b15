package repository

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// TaskStatusStore keeps the lifecycle and result of every task, keyed by handle.
// Each handle has exactly one writer (its task) but any number of readers.
type TaskStatusStore interface {
	// RecordState moves a task to state. Pending creates the record.
	RecordState(ctx context.Context, handle entity.TaskHandle, state constants.TaskState) error
	// RecordResult stores the terminal state with its result or error text.
	RecordResult(ctx context.Context, handle entity.TaskHandle, state constants.TaskState, result *entity.ScanResult, errorInfo string) error
	// Get returns common.ErrNotFound for unknown handles.
	Get(ctx context.Context, handle entity.TaskHandle) (*entity.TaskStatusRecord, error)
}

func transitionError(handle entity.TaskHandle, from, to constants.TaskState) error {
	return fmt.Errorf("%w: task %s %s -> %s", common.ErrInvalidTransition, handle, from, to)
}

func notFound(handle entity.TaskHandle) error {
	return fmt.Errorf("task %s: %w", handle, common.ErrNotFound)
}

func checkTerminal(handle entity.TaskHandle, state constants.TaskState) error {
	if !state.IsTerminal() {
		return fmt.Errorf("%w: task %s result requires a terminal state, got %s", common.ErrInvalidTransition, handle, state)
	}
	return nil
}
