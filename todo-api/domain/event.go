package domain

// Task event types published after a successful mutation.
const (
	TaskCreated      = "task-created"
	TaskUpdated      = "task-updated"
	TaskStateChanged = "task-state-changed"
	TaskDeleted      = "task-deleted"
)

// TaskEvent is an advisory change notification. Readers always refetch the task list
// rather than applying events.
type TaskEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
	State  State  `json:"state,omitempty"`
	Time   int64  `json:"time"`
}
