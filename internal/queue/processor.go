package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
	"github.com/DataisKing1/title-search-app-sub000/internal/recovery"
)

// TaskHandler executes one task and returns its result payload.
type TaskHandler func(ctx context.Context, task *models.TaskMessage) ([]byte, error)

// Processor runs a pool of workers against the queue. Handler failures go
// through the error classifier: transient failures are requeued with
// exponential backoff, everything else is recorded as a failed result.
type Processor struct {
	manager    *Manager
	classifier *recovery.Classifier
	handlers   map[string]TaskHandler
	logger     arbor.ILogger

	concurrency  int
	pollInterval time.Duration
	maxRetries   int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewProcessor creates a processor over the queue manager.
func NewProcessor(manager *Manager, classifier *recovery.Classifier, cfg common.QueueConfig, logger arbor.ILogger) *Processor {
	if classifier == nil {
		classifier = recovery.NewClassifier()
	}
	pollInterval := time.Second
	if d, err := time.ParseDuration(cfg.PollInterval); err == nil && d > 0 {
		pollInterval = d
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		manager:      manager,
		classifier:   classifier,
		handlers:     make(map[string]TaskHandler),
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		maxRetries:   manager.maxReceive,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers the handler for a task type. Must be called
// before Start.
func (p *Processor) RegisterHandler(taskType string, handler TaskHandler) {
	p.handlers[taskType] = handler
	p.logger.Debug().
		Str("task_type", taskType).
		Msg("Task handler registered")
}

// Start launches the worker goroutines.
func (p *Processor) Start() error {
	p.logger.Info().
		Int("concurrency", p.concurrency).
		Msg("Starting queue processor")

	for i := 0; i < p.concurrency; i++ {
		go p.worker(i)
	}
	return nil
}

// Stop signals all workers to exit after their current task.
func (p *Processor) Stop() error {
	p.logger.Info().Msg("Stopping queue processor")
	p.cancel()
	return nil
}

func (p *Processor) worker(workerID int) {
	// Stagger starts to spread transaction contention across the poll
	// interval.
	stagger := (p.pollInterval / time.Duration(p.concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		time.Sleep(stagger)
	}

	p.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain until empty so a burst is not throttled to one task
			// per tick.
			for {
				err := p.processOne(workerID)
				if err != nil {
					// Transaction conflicts between workers are expected
					// contention and retry on the next poll.
					if !errors.Is(err, models.ErrNoMessage) && !errors.Is(err, badger.ErrConflict) {
						p.logger.Warn().
							Err(err).
							Int("worker_id", workerID).
							Msg("Error processing task")
					}
					break
				}
				if p.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (p *Processor) processOne(workerID int) error {
	delivery, err := p.manager.Receive(p.ctx)
	if err != nil {
		return err
	}
	task := delivery.Task

	handler, exists := p.handlers[task.Type]
	if !exists {
		p.logger.Error().
			Str("task_type", task.Type).
			Str("task_id", task.ID).
			Msg("No handler registered for task type")
		p.storeResult(models.TaskResult{
			TaskID:      task.ID,
			Type:        task.Type,
			Success:     false,
			Error:       fmt.Sprintf("no handler for task type %s", task.Type),
			CompletedAt: time.Now().UTC(),
		})
		return p.manager.Settle(p.ctx, task.ID)
	}

	p.logger.Debug().
		Str("task_id", task.ID).
		Str("task_type", task.Type).
		Str("search_id", task.SearchID).
		Int("worker_id", workerID).
		Msg("Processing task")

	start := time.Now()
	data, handlerErr := handler(p.ctx, &task)
	duration := time.Since(start)

	if handlerErr != nil {
		return p.settleFailure(task, delivery.ReceiveCount, duration, handlerErr)
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Str("task_type", task.Type).
		Dur("duration", duration).
		Msg("Task completed")

	p.storeResult(models.TaskResult{
		TaskID:      task.ID,
		Type:        task.Type,
		Success:     true,
		Data:        data,
		CompletedAt: time.Now().UTC(),
	})
	return p.manager.Settle(p.ctx, task.ID)
}

// settleFailure routes a handler error through the classifier. Transient
// errors with remaining budget go back on the queue with backoff; the
// rest become failed results.
func (p *Processor) settleFailure(task models.TaskMessage, receiveCount int, duration time.Duration, handlerErr error) error {
	retryCount := receiveCount - 1
	retry, delay := p.classifier.ShouldRetry(handlerErr.Error(), retryCount, p.maxRetries)

	if retry {
		p.logger.Warn().
			Err(handlerErr).
			Str("task_id", task.ID).
			Str("task_type", task.Type).
			Int("attempt", receiveCount).
			Dur("retry_in", delay).
			Msg("Task failed, requeueing with backoff")

		if err := p.manager.Settle(p.ctx, task.ID); err != nil {
			return err
		}
		return p.manager.Resubmit(p.ctx, task, receiveCount, delay)
	}

	p.logger.Error().
		Err(handlerErr).
		Str("task_id", task.ID).
		Str("task_type", task.Type).
		Dur("duration", duration).
		Int("attempt", receiveCount).
		Msg("Task failed permanently")

	p.storeResult(models.TaskResult{
		TaskID:      task.ID,
		Type:        task.Type,
		Success:     false,
		Error:       handlerErr.Error(),
		CompletedAt: time.Now().UTC(),
	})
	return p.manager.Settle(p.ctx, task.ID)
}

func (p *Processor) storeResult(result models.TaskResult) {
	if err := p.manager.StoreResult(p.ctx, result); err != nil {
		p.logger.Warn().
			Err(err).
			Str("task_id", result.TaskID).
			Msg("Failed to store task result")
	}
}
