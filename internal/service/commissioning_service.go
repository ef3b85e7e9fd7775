// internal/service/commissioning_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"servo-commissioning/internal/commissioning"
	"servo-commissioning/internal/model"
	"servo-commissioning/internal/repository"
	"servo-commissioning/internal/store"
	"servo-commissioning/internal/utils"
)

var (
	// ErrInvalidRequest marks requests rejected before any hardware is touched
	ErrInvalidRequest = errors.New("invalid request")
	// ErrShuttingDown is returned for requests arriving after Shutdown
	ErrShuttingDown = errors.New("commissioning service is shutting down")
)

// Engine commissions one servo
type Engine interface {
	Commission(ctx context.Context, attemptID string, req model.CommissioningRequest, target model.TargetConfig) model.Outcome
}

// Flasher writes firmware to one module
type Flasher interface {
	Flash(ctx context.Context, attemptID string, module model.Module) model.Outcome
}

// TargetLoader resolves the configuration a motor slot must end up with
type TargetLoader interface {
	Load(robotPart, deviceName string) (model.TargetConfig, error)
}

// EventPublisher receives attempt lifecycle events
type EventPublisher interface {
	PublishAttemptEvent(event model.AttemptEvent)
}

// Runners groups the two hardware lanes. Servo attempts and module flashes
// use different adapters and may run side by side.
type Runners struct {
	Motors  *commissioning.Runner
	Modules *commissioning.Runner
}

// CommissioningService accepts commissioning requests, runs them on the
// matching runner and records their outcome.
type CommissioningService struct {
	engine    Engine
	flasher   Flasher
	loader    TargetLoader
	catalog   *store.Catalog
	repo      repository.AttemptRepository
	publisher EventPublisher
	runners   Runners
	logger    *utils.ServiceLogger

	// attempts outlive the HTTP request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closing bool
}

// NewCommissioningService creates a new commissioning service instance
func NewCommissioningService(
	engine Engine,
	flasher Flasher,
	loader TargetLoader,
	catalog *store.Catalog,
	repo repository.AttemptRepository,
	publisher EventPublisher,
	runners Runners,
	logger *zap.Logger,
) *CommissioningService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CommissioningService{
		engine:    engine,
		flasher:   flasher,
		loader:    loader,
		catalog:   catalog,
		repo:      repo,
		publisher: publisher,
		runners:   runners,
		logger:    utils.NewServiceLogger(logger, "commissioning-service"),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// StartMotor validates a servo request, loads its target configuration and
// launches the attempt. Store errors are returned before the attempt starts.
func (s *CommissioningService) StartMotor(ctx context.Context, req *MotorRequest) (*AttemptHandle, error) {
	part, err := s.catalog.Part(req.RobotPart)
	if err != nil {
		return nil, err
	}

	kind := part.Kind
	if req.DeviceKind != "" {
		kind, err = model.ParseDeviceKind(strings.ToUpper(req.DeviceKind))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if !kind.IsServo() {
			return nil, fmt.Errorf("%w: %s is not a servo kind", ErrInvalidRequest, kind)
		}
	}

	request, err := model.NewCommissioningRequest(part.Name, req.DeviceName, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	target, err := s.loader.Load(part.Name, req.DeviceName)
	if err != nil {
		return nil, err
	}

	return s.start(ctx, s.runners.Motors, request, func(ctx context.Context, id uuid.UUID) model.Outcome {
		return s.engine.Commission(ctx, id.String(), request, target)
	})
}

// StartModule launches a firmware flash for a catalog module
func (s *CommissioningService) StartModule(ctx context.Context, req *ModuleRequest) (*AttemptHandle, error) {
	module, err := s.catalog.Module(req.ModuleName)
	if err != nil {
		return nil, err
	}

	request, err := model.NewCommissioningRequest("", module.Name, model.DeviceKindFirmwareModule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return s.start(ctx, s.runners.Modules, request, func(ctx context.Context, id uuid.UUID) model.Outcome {
		return s.flasher.Flash(ctx, id.String(), module)
	})
}

func (s *CommissioningService) start(ctx context.Context, runner *commissioning.Runner, req model.CommissioningRequest, job commissioning.Job) (*AttemptHandle, error) {
	if err := s.track(); err != nil {
		return nil, err
	}

	attempt, err := runner.Start(s.baseCtx, req, job)
	if err != nil {
		s.wg.Done()
		return nil, err
	}

	handle := newAttemptHandle(attempt)
	record := model.NewAttemptRecord(attempt.ID, req, attempt.StartedAt)
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Warn("Failed to record attempt", zap.Error(err), zap.String("attempt_id", attempt.ID.String()))
	}

	alog := utils.NewAttemptLogger(s.logger.Logger, attempt.ID.String(), req)
	alog.Start(zap.String("runner", runner.Name()))

	s.publish(model.EventAttemptStarted, attempt, 0, nil)

	go s.monitor(attempt, record, handle, alog)

	return handle, nil
}

// track counts a new attempt unless Shutdown has begun
func (s *CommissioningService) track() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrShuttingDown
	}
	s.wg.Add(1)
	return nil
}

// monitor forwards progress ticks and completes the attempt record
func (s *CommissioningService) monitor(attempt *commissioning.Attempt, record *model.AttemptRecord, handle *AttemptHandle, alog *utils.AttemptLogger) {
	defer s.wg.Done()

	for p := range attempt.Progress {
		alog.Progress(p)
		s.publish(model.EventAttemptProgress, attempt, p, nil)
	}

	outcome := <-attempt.Result
	alog.Outcome(outcome)

	record.Complete(outcome, time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Warn("Failed to store attempt outcome", zap.Error(err), zap.String("attempt_id", attempt.ID.String()))
	}
	cancel()

	s.publish(model.EventAttemptCompleted, attempt, attempt.ProgressValue(), &outcome)
	handle.finish(outcome)
}

func (s *CommissioningService) publish(eventType model.EventType, attempt *commissioning.Attempt, progress int, outcome *model.Outcome) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishAttemptEvent(model.AttemptEvent{
		Type:       eventType,
		AttemptID:  attempt.ID,
		RobotPart:  attempt.Request.RobotPart(),
		DeviceName: attempt.Request.DeviceName(),
		DeviceKind: attempt.Request.Kind(),
		Progress:   progress,
		Outcome:    outcome,
		Timestamp:  time.Now(),
	})
}

// Wait blocks until the attempt completes or ctx is done
func (s *CommissioningService) Wait(ctx context.Context, handle *AttemptHandle) (model.Outcome, error) {
	select {
	case <-handle.Done():
		return handle.Outcome(), nil
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

// Status reports what each runner is doing
func (s *CommissioningService) Status() *StatusResponse {
	return &StatusResponse{
		Motors:  runnerStatus(s.runners.Motors),
		Modules: runnerStatus(s.runners.Modules),
	}
}

func runnerStatus(r *commissioning.Runner) RunnerStatus {
	status := RunnerStatus{Name: r.Name(), Busy: r.IsRunning()}
	if attempt, ok := r.Current(); ok {
		id := attempt.ID
		startedAt := attempt.StartedAt
		status.AttemptID = &id
		status.Request = attempt.Request.Key()
		status.DeviceKind = attempt.Request.Kind()
		status.Progress = attempt.ProgressValue()
		status.StartedAt = &startedAt
	}
	return status
}

// Catalog returns the static robot part and module tables
func (s *CommissioningService) Catalog() *CatalogResponse {
	return &CatalogResponse{
		Parts:   s.catalog.Parts(),
		Modules: s.catalog.Modules(),
	}
}

// ListAttempts returns attempt history, newest first
func (s *CommissioningService) ListAttempts(ctx context.Context, filter *repository.AttemptFilter) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return &AttemptListResponse{
		Attempts: attempts,
		Total:    total,
		Page:     filter.Page,
		PerPage:  filter.PerPage,
	}, nil
}

// GetAttempt returns one attempt record
func (s *CommissioningService) GetAttempt(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// CleanupAttempts removes completed attempts older than retention
func (s *CommissioningService) CleanupAttempts(ctx context.Context, retention time.Duration) (int64, error) {
	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup attempts: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Cleaned up old attempts", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// RunCleanup calls CleanupAttempts every interval until ctx is done
func (s *CommissioningService) RunCleanup(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cctx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := s.CleanupAttempts(cctx, retention); err != nil {
				s.logger.Error("Attempt cleanup failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Shutdown cancels in-flight attempts and waits for their outcomes to be
// recorded, or for ctx to expire.
func (s *CommissioningService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("attempts still running at shutdown: %w", ctx.Err())
	}
}
