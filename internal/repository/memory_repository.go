// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"servo-commissioning/internal/model"
)

// memoryRepository keeps attempt history in process memory. It is used
// when no database is configured and is bounded to capacity records.
type memoryRepository struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*model.AttemptRecord
	capacity int
	logger   *zap.Logger
}

// NewMemoryAttemptRepository creates an in-memory attempt repository
func NewMemoryAttemptRepository(capacity int, logger *zap.Logger) AttemptRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryRepository{
		attempts: make(map[uuid.UUID]*model.AttemptRecord),
		capacity: capacity,
		logger:   logger,
	}
}

func (r *memoryRepository) Create(ctx context.Context, attempt *model.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt already exists with id: %s", attempt.ID)
	}
	if len(r.attempts) >= r.capacity {
		r.evictOldestLocked()
	}

	r.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r *memoryRepository) Update(ctx context.Context, attempt *model.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[attempt.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, attempt.ID)
	}
	r.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attempt, ok := r.attempts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
	}
	return cloneAttempt(attempt), nil
}

func (r *memoryRepository) List(ctx context.Context, filter *AttemptFilter) ([]*model.AttemptRecord, int, error) {
	filter.Normalize()

	r.mu.RLock()
	matched := make([]*model.AttemptRecord, 0, len(r.attempts))
	for _, a := range r.attempts {
		if filter.matches(a) {
			matched = append(matched, cloneAttempt(a))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start >= total {
		return []*model.AttemptRecord{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memoryRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, a := range r.attempts {
		if a.IsCompleted() && a.StartedAt.Before(olderThan) {
			delete(r.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

// evictOldestLocked drops the oldest completed attempt to make room
func (r *memoryRepository) evictOldestLocked() {
	var oldest *model.AttemptRecord
	for _, a := range r.attempts {
		if !a.IsCompleted() {
			continue
		}
		if oldest == nil || a.StartedAt.Before(oldest.StartedAt) {
			oldest = a
		}
	}
	if oldest != nil {
		delete(r.attempts, oldest.ID)
		r.logger.Debug("Evicted attempt from history", zap.String("attempt_id", oldest.ID.String()))
	}
}

func cloneAttempt(a *model.AttemptRecord) *model.AttemptRecord {
	c := *a
	if a.Result != nil {
		c.Result = make(model.JSONObject, len(a.Result))
		for k, v := range a.Result {
			c.Result[k] = v
		}
	}
	return &c
}
