package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue has no visible messages.
var ErrNoMessage = errors.New("no messages in queue")

// ErrResultTimeout is returned when waiting on a task result exceeds the
// caller's deadline. It is classified under the timeout category.
var ErrResultTimeout = errors.New("timed out waiting for task result")

// TaskMessage is the immutable unit of work sent to the queue. Once
// enqueued it is not modified; runtime state lives in TaskResult.
type TaskMessage struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`     // stage or child task name, used for handler routing
	SearchID string          `json:"search_id"`
	Payload  json.RawMessage `json:"payload,omitempty"` // task-specific data, passed through untouched

	Queue     string    `json:"queue"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskResult is the stored outcome of one task execution, polled by
// callers that joined on the task via GetResult.
type TaskResult struct {
	TaskID      string          `json:"task_id"`
	Type        string          `json:"type"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}
