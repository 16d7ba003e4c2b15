package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/resume-scanner/constants"
)

// TaskHandle identifies one submitted scan task. It is the only key for status lookups.
type TaskHandle string

// NewTaskHandle returns a fresh, never reused handle.
func NewTaskHandle() TaskHandle { return TaskHandle(uuid.NewString()) }

func (h TaskHandle) String() string { return string(h) }

// ParseTaskHandle checks that s looks like a handle this service issued.
func ParseTaskHandle(s string) (TaskHandle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return TaskHandle(id.String()), nil
}

// DocumentEntry is one resume to scan. Immutable once submitted.
type DocumentEntry struct {
	UserID    string `json:"user_id"`
	ResumeURL string `json:"resume_url"`
}

// BatchRequest is a validated submission: every entry shares Keywords and TotalKeywords.
type BatchRequest struct {
	Entries       []DocumentEntry `json:"entries"`
	Keywords      []string        `json:"keywords"`
	TotalKeywords int             `json:"total_keywords"`
}

// ScanResult is produced at most once per task and never modified afterwards.
type ScanResult struct {
	UserID            string   `json:"user_id"`
	ResumeURL         string   `json:"resume_url"`
	Percentage        float64  `json:"percentage"`
	MatchedKeywords   []string `json:"matched_keywords"`
	PresentVocabulary []string `json:"present_vocabulary"`
}

// TaskStatusRecord is the stored lifecycle of a single task.
type TaskStatusRecord struct {
	Handle    TaskHandle          `json:"handle"`
	State     constants.TaskState `json:"state"`
	Result    *ScanResult         `json:"result,omitempty"`
	ErrorInfo *string             `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TaskStatus is the client-facing view of a task.
type TaskStatus struct {
	Handle TaskHandle          `json:"handle"`
	State  constants.TaskState `json:"state"`
	Result *ScanResult         `json:"result"`
	Error  *string             `json:"error"`
	Known  bool                `json:"-"`
}

// SavedResult is a result the client decided to persist, with its review flag.
type SavedResult struct {
	ScanResult
	Checked bool `json:"checked"`
}
