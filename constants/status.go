package constants

// TaskState is the canonical lifecycle state of a scan task.
type TaskState string

// Stable values (store these exact strings in DB and on the wire).
const (
	TaskStatePending   TaskState = "pending"   // accepted, waiting for a worker
	TaskStateRunning   TaskState = "running"   // a worker picked it up
	TaskStateSucceeded TaskState = "succeeded" // finished; result may be empty
	TaskStateFailed    TaskState = "failed"    // unexpected internal fault
)

var allTaskStates = []TaskState{
	TaskStatePending,
	TaskStateRunning,
	TaskStateSucceeded,
	TaskStateFailed,
}

func (s TaskState) String() string { return string(s) }

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// CanTransitionTo enforces Pending -> Running -> (Succeeded | Failed).
// A pending task may also finish directly when it never got to run.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStatePending:
		return next == TaskStateRunning || next.IsTerminal()
	case TaskStateRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Predecessors lists the states a task may be in right before moving to s.
func (s TaskState) Predecessors() []TaskState {
	var out []TaskState
	for _, from := range allTaskStates {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// ParseTaskState maps a stored string back to a TaskState.
func ParseTaskState(s string) (TaskState, bool) {
	for _, st := range allTaskStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}
