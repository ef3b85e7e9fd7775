// internal/commissioning/engine.go
package commissioning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"servo-commissioning/internal/model"
	"servo-commissioning/internal/utils"
)

// State is a step of the servo commissioning state machine
type State string

const (
	StateIdle            State = "idle"
	StatePortResolving   State = "port_resolving"
	StateBaudNegotiating State = "baud_negotiating"
	StateScanning        State = "scanning"
	StateNoDevice        State = "no_device"
	StateMultipleDevices State = "multiple_devices"
	StateSingleDevice    State = "single_device"
	StateIDResolving     State = "id_resolving"
	StateParameterWrite  State = "parameter_writing"
	StateClosed          State = "closed"
)

// EngineConfig holds the engine's timing and platform settings
type EngineConfig struct {
	GOOS        string
	SettleDelay time.Duration
}

// Engine commissions one servo per call. It holds no per-attempt state and
// may be shared, but the serial port registry rejects concurrent use of the
// same adapter.
type Engine struct {
	config     EngineConfig
	resolver   PortResolver
	negotiator *Negotiator
	scanner    *Scanner
	audit      *utils.AuditLogger
	logger     *zap.Logger
}

// NewEngine creates a commissioning engine
func NewEngine(cfg EngineConfig, resolver PortResolver, negotiator *Negotiator, scanner *Scanner, logger *zap.Logger) *Engine {
	return &Engine{
		config:     cfg,
		resolver:   resolver,
		negotiator: negotiator,
		scanner:    scanner,
		audit:      utils.NewAuditLogger(logger),
		logger:     logger.With(zap.String("component", "engine")),
	}
}

// Commission drives one device to the target configuration. Hardware
// failures are reported through the outcome, never as panics. Any bus
// opened here is closed before the outcome is returned.
func (e *Engine) Commission(ctx context.Context, attemptID string, req model.CommissioningRequest, target model.TargetConfig) model.Outcome {
	log := e.logger.With(zap.String("attempt_id", attemptID), zap.Stringer("request", req))
	enter := func(s State) { log.Debug("State transition", zap.String("state", string(s))) }

	enter(StatePortResolving)
	port, err := e.resolver.Resolve(e.config.GOOS)
	if err != nil {
		enter(StateClosed)
		return failureFor(err)
	}

	enter(StateBaudNegotiating)
	b, err := e.negotiator.Negotiate(ctx, port, req.Kind())
	if err != nil {
		enter(StateClosed)
		return failureFor(err)
	}

	outcome := e.configure(ctx, log, enter, attemptID, b, req, target)

	if err := b.Close(); err != nil {
		log.Warn("Failed to close bus", zap.Error(err))
	}
	enter(StateClosed)
	return outcome
}

func (e *Engine) configure(
	ctx context.Context,
	log *zap.Logger,
	enter func(State),
	attemptID string,
	b Bus,
	req model.CommissioningRequest,
	target model.TargetConfig,
) model.Outcome {
	enter(StateScanning)
	result, err := e.scanner.Scan(ctx, b)
	if err != nil {
		return failureFor(err)
	}

	switch result.Class() {
	case ScanEmpty:
		enter(StateNoDevice)
		return model.Failure(model.OutcomeNoDeviceDetected, "No motor detected.", nil)
	case ScanMultiple:
		enter(StateMultipleDevices)
		outcome := model.Failure(model.OutcomeMultipleDevicesDetected,
			fmt.Sprintf("Multiple motors detected: %v.", result.IDs), nil)
		outcome.DetectedIDs = result.IDs
		return outcome
	}

	enter(StateSingleDevice)
	found := result.IDs[0]
	device := model.Device{
		Identifier: found,
		BaudRate:   b.BaudRate(),
		Kind:       req.Kind(),
	}

	if modelNumber, err := b.ModelNumber(ctx, found); err != nil {
		log.Warn("Could not read model number, using protocol defaults", zap.Int("id", found), zap.Error(err))
	} else {
		device.ModelNumber = modelNumber
	}

	enter(StateIDResolving)
	id := found
	if found != target.Identifier {
		if err := b.ChangeID(ctx, found, target.Identifier); err != nil {
			return configurationFailure("identifier", err)
		}
		id = target.Identifier
		if err := e.settle(ctx); err != nil {
			return configurationFailure("identifier", err)
		}
	}

	enter(StateParameterWrite)
	writes := []struct {
		name  string
		write func() error
	}{
		{"angle limits", func() error { return b.SetAngleLimits(ctx, id, target.AngleLimits) }},
		{"return delay", func() error { return b.SetReturnDelay(ctx, id, target.ReturnDelay) }},
		{"temperature limit", func() error { return b.SetTemperatureLimit(ctx, id, target.TemperatureLimit) }},
		// the device switches rate after this write
		{"baud rate", func() error { return b.SetBaudRate(ctx, id, target.BaudRate) }},
	}

	for _, w := range writes {
		if err := w.write(); err != nil {
			return configurationFailure(w.name, err)
		}
		if err := e.settle(ctx); err != nil {
			return configurationFailure(w.name, err)
		}
		log.Debug("Parameter written", zap.String("parameter", w.name), zap.Int("id", id))
	}

	configured := device.Apply(target)
	e.audit.LogDeviceConfiguration(attemptID, found, configured)
	return model.Success("Motor configured.", &configured)
}

func (e *Engine) settle(ctx context.Context) error {
	if e.config.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.config.SettleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func configurationFailure(parameter string, err error) model.Outcome {
	return model.Failure(model.OutcomeConfigurationTimeout,
		fmt.Sprintf("Configuration failed while writing the %s.", parameter), err)
}
