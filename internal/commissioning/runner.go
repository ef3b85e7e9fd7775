// internal/commissioning/runner.go
package commissioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"servo-commissioning/internal/model"
)

// Job performs the blocking hardware work of one attempt
type Job func(ctx context.Context, attemptID uuid.UUID) model.Outcome

// Attempt is the caller's view of one running attempt. Result delivers
// exactly one outcome and is then closed. Progress is closed when the
// ticker exits, which happens no later than one interval after the outcome.
type Attempt struct {
	ID        uuid.UUID
	Request   model.CommissioningRequest
	StartedAt time.Time
	Progress  <-chan int
	Result    <-chan model.Outcome

	reporter *ProgressReporter
}

// ProgressValue returns the ticker's current count
func (a *Attempt) ProgressValue() int {
	return a.reporter.Value()
}

// Runner runs at most one attempt at a time. Each attempt pairs a
// ProgressReporter with an execution worker.
type Runner struct {
	name     string
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	mu      sync.RWMutex
	current *Attempt
}

// NewRunner creates a runner whose ticker advances every interval
func NewRunner(name string, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		logger:   logger.With(zap.String("runner", name)),
	}
}

// Name returns the runner's name
func (r *Runner) Name() string {
	return r.name
}

// IsRunning reports whether an attempt is in flight
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Current returns the in-flight attempt, if any
func (r *Runner) Current() (*Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != nil
}

// Start launches an attempt. While another attempt is in flight it returns
// ErrAttemptInProgress and leaves the running attempt untouched.
func (r *Runner) Start(ctx context.Context, req model.CommissioningRequest, job Job) (*Attempt, error) {
	if !r.running.CAS(false, true) {
		return nil, ErrAttemptInProgress
	}

	reporter := NewProgressReporter(r.interval)
	result := make(chan model.Outcome, 1)

	attempt := &Attempt{
		ID:        uuid.New(),
		Request:   req,
		StartedAt: time.Now(),
		Progress:  reporter.Updates(),
		Result:    result,
		reporter:  reporter,
	}

	r.mu.Lock()
	r.current = attempt
	r.mu.Unlock()

	r.logger.Debug("Attempt started", zap.String("attempt_id", attempt.ID.String()), zap.Stringer("request", req))

	reporter.Start()
	go func() {
		outcome := r.execute(ctx, attempt.ID, job)

		reporter.Stop()

		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
		r.running.Store(false)

		result <- outcome
		close(result)
	}()

	return attempt, nil
}

func (r *Runner) execute(ctx context.Context, attemptID uuid.UUID, job Job) (outcome model.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Attempt panicked",
				zap.String("attempt_id", attemptID.String()),
				zap.Any("panic", rec),
			)
			outcome = model.Failure(model.OutcomeCommunicationTimeout, "Internal error.", fmt.Errorf("panic: %v", rec))
		}
	}()
	return job(ctx, attemptID)
}
