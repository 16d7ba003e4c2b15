package async

import (
	"context"

	"github.com/joseph-ayodele/resume-scanner/internal/core"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// Dispatcher runs ScanTasks in the background. A task is Pending in the status
// store by the time Submit returns its handle.
type Dispatcher interface {
	Submit(ctx context.Context, task core.ScanTask) (entity.TaskHandle, error)
	// SubmitAll accepts every task or none of them. Handles follow the order of
	// tasks; tasks without a handle are assigned one in place.
	SubmitAll(ctx context.Context, tasks []core.ScanTask) ([]entity.TaskHandle, error)
	// Shutdown returns an error when ctx ends before running tasks finish.
	Shutdown(ctx context.Context) error
}
