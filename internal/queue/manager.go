package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// queuedMessage is the internal wrapper stored in Badger. The task ID
// doubles as the queue message ID so Revoke and GetResult share handles.
type queuedMessage struct {
	Task         models.TaskMessage `json:"task"`
	EnqueuedAt   time.Time          `json:"enqueued_at"`
	VisibleAt    time.Time          `json:"visible_at"`
	ReceiveCount int                `json:"receive_count"`
}

// Delivery is one received message plus the metadata workers need to
// settle it.
type Delivery struct {
	Task         models.TaskMessage
	ReceiveCount int
}

// Manager is a persistent task queue on BadgerDB. Messages carry a
// visibility timeout: a received message is hidden until the timeout
// lapses, then redelivered unless settled. Deliveries past maxReceive are
// dead-lettered with a failed result so joiners unblock immediately.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	resultPoll        time.Duration
}

// NewManager creates a Badger-backed queue manager.
func NewManager(db *badger.DB, cfg common.QueueConfig) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	queueName := cfg.QueueName
	if queueName == "" {
		queueName = "titlesearch"
	}

	visibility := 5 * time.Minute
	if d, err := time.ParseDuration(cfg.VisibilityTimeout); err == nil && d > 0 {
		visibility = d
	}
	maxReceive := cfg.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}
	resultPoll := 200 * time.Millisecond
	if d, err := time.ParseDuration(cfg.PollInterval); err == nil && d > 0 && d < resultPoll {
		resultPoll = d
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibility,
		maxReceive:        maxReceive,
		resultPoll:        resultPoll,
	}, nil
}

// Submit enqueues a task and returns its handle. A non-zero delay defers
// visibility, which is how retry backoff is expressed.
func (m *Manager) Submit(ctx context.Context, taskType, searchID string, payload []byte, delay time.Duration) (string, error) {
	task := models.TaskMessage{
		ID:        common.NewTaskID(),
		Type:      taskType,
		SearchID:  searchID,
		Payload:   payload,
		Queue:     m.queueName,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.enqueue(task, delay, 0); err != nil {
		return "", err
	}
	return task.ID, nil
}

// Resubmit puts a previously delivered task back on the queue under its
// original ID, deferred by delay. Receive count carries over so the
// dead-letter ceiling still applies across retries.
func (m *Manager) Resubmit(ctx context.Context, task models.TaskMessage, receiveCount int, delay time.Duration) error {
	return m.enqueue(task, delay, receiveCount)
}

func (m *Manager) enqueue(task models.TaskMessage, delay time.Duration, receiveCount int) error {
	now := time.Now()
	qMsg := queuedMessage{
		Task:         task,
		EnqueuedAt:   now,
		VisibleAt:    now.Add(delay),
		ReceiveCount: receiveCount,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(task.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, task.ID), []byte{})
	})
}

// Receive claims the next visible message and hides it for the visibility
// timeout. Returns models.ErrNoMessage when nothing is ready. Messages
// whose delivery count has hit maxReceive are dead-lettered in place.
func (m *Manager) Receive(ctx context.Context) (*Delivery, error) {
	var claimed queuedMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by visibility timestamp; nothing
				// further is ready.
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index entry, clean it up.
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var qMsg queuedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= m.maxReceive {
				if err := m.deadLetter(txn, indexKey, qMsg); err != nil {
					return err
				}
				continue
			}

			qMsg.ReceiveCount++
			qMsg.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claimed = qMsg
			return nil
		}

		return models.ErrNoMessage
	})
	if err != nil {
		return nil, err
	}

	return &Delivery{Task: claimed.Task, ReceiveCount: claimed.ReceiveCount}, nil
}

// deadLetter moves an exhausted message out of the live queue and stores
// a failed result so anything joined on the task unblocks.
func (m *Manager) deadLetter(txn *badger.Txn, indexKey []byte, qMsg queuedMessage) error {
	if err := txn.Delete(indexKey); err != nil {
		return err
	}
	if err := txn.Delete(m.msgKey(qMsg.Task.ID)); err != nil {
		return err
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return err
	}
	if err := txn.Set(m.deadKey(qMsg.Task.ID), data); err != nil {
		return err
	}

	result := models.TaskResult{
		TaskID:      qMsg.Task.ID,
		Type:        qMsg.Task.Type,
		Success:     false,
		Error:       fmt.Sprintf("task exceeded maximum delivery count (%d)", m.maxReceive),
		CompletedAt: time.Now().UTC(),
	}
	resultData, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return txn.Set(m.resultKey(qMsg.Task.ID), resultData)
}

// Settle removes a delivered message from the queue for good.
func (m *Manager) Settle(ctx context.Context, taskID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(taskID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var qMsg queuedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(qMsg.VisibleAt, taskID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(m.msgKey(taskID))
	})
}

// StoreResult records the outcome of a task for joiners polling GetResult.
// A task has exactly one result: the first write wins, so a revocation or
// dead-letter outcome is never clobbered by a late-finishing handler.
func (m *Manager) StoreResult(ctx context.Context, result models.TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(m.resultKey(result.TaskID)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.resultKey(result.TaskID), data)
	})
}

// GetResult blocks until the task's result is stored, the timeout lapses,
// or ctx is cancelled. Timeout expiry returns models.ErrResultTimeout.
func (m *Manager) GetResult(ctx context.Context, taskID string, timeout time.Duration) (*models.TaskResult, error) {
	deadline := time.Now().Add(timeout)

	for {
		result, err := m.lookupResult(taskID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}

		if time.Now().After(deadline) {
			return nil, models.ErrResultTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.resultPoll):
		}
	}
}

func (m *Manager) lookupResult(taskID string) (*models.TaskResult, error) {
	var result *models.TaskResult
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.resultKey(taskID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var r models.TaskResult
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			result = &r
			return nil
		})
	})
	return result, err
}

// Revoke removes a task that has not completed. Best effort: an in-flight
// handler cannot be interrupted, but the message will not be redelivered
// and joiners see a cancelled result.
func (m *Manager) Revoke(ctx context.Context, taskID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(m.resultKey(taskID)); err == nil {
			// Already completed, nothing to revoke.
			return nil
		}

		item, err := txn.Get(m.msgKey(taskID))
		if err == nil {
			var qMsg queuedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}
			if err := txn.Delete(m.indexKey(qMsg.VisibleAt, taskID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(m.msgKey(taskID)); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		result := models.TaskResult{
			TaskID:      taskID,
			Success:     false,
			Error:       "task revoked",
			CompletedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return txn.Set(m.resultKey(taskID), data)
	})
}

// Depth counts messages currently on the queue, visible or not.
func (m *Manager) Depth() (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Key layout mirrors a visibility-indexed queue: message bodies keyed by
// ID, plus an index keyed by zero-padded visibility timestamp so iteration
// order is delivery order.

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) resultKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:result:%s", m.queueName, id))
}

func (m *Manager) deadKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dead:%s", m.queueName, id))
}

func (m *Manager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
