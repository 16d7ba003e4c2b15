package repository

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// MemoryStore is a process-local TaskStatusStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[entity.TaskHandle]*entity.TaskStatusRecord
	now     func() time.Time
}

var _ TaskStatusStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[entity.TaskHandle]*entity.TaskStatusRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) RecordState(_ context.Context, handle entity.TaskHandle, state constants.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[handle]
	if state == constants.TaskStatePending {
		if ok {
			return transitionError(handle, rec.State, state)
		}
		now := s.now().UTC()
		s.records[handle] = &entity.TaskStatusRecord{Handle: handle, State: state, CreatedAt: now, UpdatedAt: now}
		return nil
	}
	if !ok {
		return notFound(handle)
	}
	if !rec.State.CanTransitionTo(state) {
		return transitionError(handle, rec.State, state)
	}
	rec.State = state
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) RecordResult(_ context.Context, handle entity.TaskHandle, state constants.TaskState, result *entity.ScanResult, errorInfo string) error {
	if err := checkTerminal(handle, state); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[handle]
	if !ok {
		return notFound(handle)
	}
	if !rec.State.CanTransitionTo(state) {
		return transitionError(handle, rec.State, state)
	}
	rec.State = state
	rec.Result = cloneResult(result)
	if errorInfo != "" {
		info := errorInfo
		rec.ErrorInfo = &info
	}
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, handle entity.TaskHandle) (*entity.TaskStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[handle]
	if !ok {
		return nil, notFound(handle)
	}
	out := *rec
	out.Result = cloneResult(rec.Result)
	return &out, nil
}

// Len reports how many tasks are tracked.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneResult(r *entity.ScanResult) *entity.ScanResult {
	if r == nil {
		return nil
	}
	out := *r
	out.MatchedKeywords = cloneStrings(r.MatchedKeywords)
	out.PresentVocabulary = cloneStrings(r.PresentVocabulary)
	return &out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
