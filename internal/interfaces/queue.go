package interfaces

import (
	"context"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// TaskQueue is the distributed task queue contract the pipeline consumes.
// Submit enqueues a task (optionally delayed) and returns its handle;
// GetResult joins on a task with a bounded timeout; Revoke best-effort
// removes a task that has not been picked up yet.
type TaskQueue interface {
	Submit(ctx context.Context, taskType, searchID string, payload []byte, delay time.Duration) (string, error)
	GetResult(ctx context.Context, taskID string, timeout time.Duration) (*models.TaskResult, error)
	Revoke(ctx context.Context, taskID string) error
}
