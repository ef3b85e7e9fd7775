// internal/commissioning/flasher.go
package commissioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"servo-commissioning/internal/model"
	"servo-commissioning/internal/utils"
)

// CommandRunner runs an external command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FlasherConfig describes the external flashing command
type FlasherConfig struct {
	Command      string
	Args         []string
	BinaryDir    string
	BinarySuffix string
	Timeout      time.Duration
}

// Flasher writes firmware images to modules in DFU mode
type Flasher struct {
	config FlasherConfig
	probe  DFUProbe
	run    CommandRunner
	audit  *utils.AuditLogger
	logger *zap.Logger
}

// NewFlasher creates a flasher. probe may be nil to skip the USB check.
func NewFlasher(cfg FlasherConfig, probe DFUProbe, logger *zap.Logger) *Flasher {
	return &Flasher{
		config: cfg,
		probe:  probe,
		run:    execCommand,
		audit:  utils.NewAuditLogger(logger),
		logger: logger.With(zap.String("component", "flasher")),
	}
}

// ImagePath returns the firmware image location for a binary name
func (f *Flasher) ImagePath(binary string) string {
	return filepath.Join(f.config.BinaryDir, binary+f.config.BinarySuffix)
}

// Flash writes the module's image. Success iff the command exits with status 0.
func (f *Flasher) Flash(ctx context.Context, attemptID string, module model.Module) model.Outcome {
	image := f.ImagePath(module.Binary)
	log := f.logger.With(
		zap.String("attempt_id", attemptID),
		zap.String("module", module.Name),
		zap.String("image", image),
	)

	if _, err := os.Stat(image); err != nil {
		return model.Failure(model.OutcomeFlashFailed, "Firmware image not found.",
			fmt.Errorf("%w: %s: %w", ErrImageNotFound, image, err))
	}

	if f.probe != nil {
		present, err := f.probe.Present(ctx)
		switch {
		case err != nil:
			log.Warn("DFU probe failed, flashing anyway", zap.Error(err))
		case !present:
			return model.Failure(model.OutcomeFlashFailed, "No module in DFU mode detected.", ErrDFUNotPresent)
		}
	}

	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), f.config.Args...), image)
	log.Info("Flashing module", zap.String("command", f.config.Command), zap.Strings("args", args))

	output, err := f.run(ctx, f.config.Command, args...)
	f.audit.LogFirmwareFlash(attemptID, module.Name, image, err == nil)
	if err != nil {
		detail := "Flashing failed."
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = fmt.Sprintf("Flashing failed with exit status %d.", exitErr.ExitCode())
		}
		log.Warn("Flash command failed", zap.Error(err), zap.ByteString("output", output))
		return model.Failure(model.OutcomeFlashFailed, detail, err)
	}

	return model.Success("Module flashed.", nil)
}
