package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/async"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/core"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/match"
	"github.com/joseph-ayodele/resume-scanner/internal/repository"
)

// Service accepts batch submissions and answers status polls. It owns no task
// state: submissions go to the dispatcher and reads go to the status store.
type Service struct {
	dispatcher async.Dispatcher
	store      repository.TaskStatusStore
	logger     *slog.Logger
}

// NewService creates a new batch coordinator.
func NewService(dispatcher async.Dispatcher, store repository.TaskStatusStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dispatcher: dispatcher, store: store, logger: logger}
}

// Validate checks a submission before anything is created.
func Validate(entries []entity.DocumentEntry, keywords []string) error {
	v := common.NewValidator()
	if len(entries) == 0 {
		v.Field("entries", []string(nil), common.Required)
	}
	for i, e := range entries {
		v.Field(fmt.Sprintf("entries[%d].user_id", i), e.UserID, common.Required)
		v.Field(fmt.Sprintf("entries[%d].resume_url", i), e.ResumeURL, common.Required, common.HTTPURL)
	}
	v.Field("keywords", keywords, common.Required, common.NoBlankItems)
	return v.Error()
}

// SubmitBatch creates one ScanTask per entry and returns their handles in entry
// order. Nothing is dispatched unless the whole batch is valid.
func (s *Service) SubmitBatch(ctx context.Context, entries []entity.DocumentEntry, keywords []string) ([]entity.TaskHandle, error) {
	if err := Validate(entries, keywords); err != nil {
		s.logger.Warn("rejected batch submission", "entries", len(entries), "keywords", len(keywords), "error", err)
		return nil, err
	}

	req := entity.BatchRequest{
		Entries:       make([]entity.DocumentEntry, len(entries)),
		Keywords:      make([]string, len(keywords)),
		TotalKeywords: len(keywords),
	}
	for i, e := range entries {
		req.Entries[i] = entity.DocumentEntry{UserID: strings.TrimSpace(e.UserID), ResumeURL: strings.TrimSpace(e.ResumeURL)}
	}
	for i, k := range keywords {
		req.Keywords[i] = strings.TrimSpace(k)
	}

	// Patterns are compiled once here and released with the batch's tasks.
	ks, err := match.CompileKeywords(req.Keywords)
	if err != nil {
		s.logger.Warn("rejected batch keywords", "keywords", len(req.Keywords), "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	tasks := make([]core.ScanTask, len(req.Entries))
	for i, e := range req.Entries {
		tasks[i] = core.ScanTask{
			Entry:         e,
			Keywords:      req.Keywords,
			Compiled:      ks,
			TotalKeywords: req.TotalKeywords,
		}
	}

	handles, err := s.dispatcher.SubmitAll(ctx, tasks)
	if err != nil {
		s.logger.Error("failed to dispatch batch", "entries", len(tasks), "error", err)
		return nil, common.NewAppError("DISPATCH_FAILED", "batch could not be queued", err)
	}

	s.logger.Info("batch submitted", "entries", len(handles), "total_keywords", req.TotalKeywords)
	return handles, nil
}

// GetStatus reads the task's record once. Handles the store has never seen are
// reported as pending with Known=false; so are malformed handles, without a
// store read.
func (s *Service) GetStatus(ctx context.Context, handle entity.TaskHandle) (*entity.TaskStatus, error) {
	canonical, err := entity.ParseTaskHandle(handle.String())
	if err != nil {
		s.logger.Debug("status requested for malformed handle", "task_id", handle, "error", err)
		return &entity.TaskStatus{Handle: handle, State: constants.TaskStatePending}, nil
	}
	handle = canonical

	rec, err := s.store.Get(ctx, handle)
	if errors.Is(err, common.ErrNotFound) {
		s.logger.Debug("status requested for unknown task", "task_id", handle)
		return &entity.TaskStatus{Handle: handle, State: constants.TaskStatePending}, nil
	}
	if err != nil {
		s.logger.Error("failed to read task status", "task_id", handle, "error", err)
		return nil, common.NewAppError("STATUS_UNAVAILABLE", "task status could not be read", err)
	}
	return &entity.TaskStatus{
		Handle: rec.Handle,
		State:  rec.State,
		Result: rec.Result,
		Error:  rec.ErrorInfo,
		Known:  true,
	}, nil
}
