// internal/store/loader.go
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"servo-commissioning/internal/model"
)

var (
	ErrUnknownDevice     = errors.New("unknown device")
	ErrStoreUnavailable  = errors.New("configuration store unavailable")
	ErrInvalidMotorEntry = errors.New("invalid motor entry")
)

var (
	pi             = decimal.RequireFromString("3.14159265358979323846264338327950288")
	degreesPerHalf = decimal.NewFromInt(180)
)

// Defaults are the parameters the store does not carry per motor
type Defaults struct {
	BaudRate         int
	TemperatureLimit int
	ReturnDelay      int
}

// Loader resolves (robot part, device name) pairs against the on-disk store.
// Files are re-read on every call so edits apply to the next attempt.
type Loader struct {
	dir      string
	catalog  *Catalog
	defaults Defaults
	logger   *zap.Logger
}

type motorEntry struct {
	DxlMotor *dxlMotor `yaml:"dxl_motor"`
}

type dxlMotor struct {
	ID            *int     `yaml:"id"`
	CWAngleLimit  *float64 `yaml:"cw_angle_limit"`
	CCWAngleLimit *float64 `yaml:"ccw_angle_limit"`
}

// NewLoader creates a loader reading <dir>/<canonical part>.yaml
func NewLoader(dir string, catalog *Catalog, defaults Defaults, logger *zap.Logger) *Loader {
	return &Loader{
		dir:      dir,
		catalog:  catalog,
		defaults: defaults,
		logger:   logger.With(zap.String("component", "config_store")),
	}
}

// Load returns the target configuration of one motor slot
func (l *Loader) Load(robotPart, deviceName string) (model.TargetConfig, error) {
	part, err := l.catalog.Part(robotPart)
	if err != nil {
		return model.TargetConfig{}, err
	}

	key := deviceName
	if slot, ok := part.Slot(deviceName); ok {
		key = slot.Key
	}

	entry, err := l.readMotor(part.Canonical, key)
	if err != nil {
		return model.TargetConfig{}, err
	}

	target := model.TargetConfig{
		Identifier: *entry.ID,
		AngleLimits: model.AngleLimits{
			Min: RadiansToDegrees(*entry.CWAngleLimit),
			Max: RadiansToDegrees(*entry.CCWAngleLimit),
		},
		BaudRate:         l.defaults.BaudRate,
		TemperatureLimit: l.defaults.TemperatureLimit,
		ReturnDelay:      l.defaults.ReturnDelay,
	}

	l.logger.Debug("Loaded motor configuration",
		zap.String("robot_part", part.Canonical),
		zap.String("motor", key),
		zap.Int("identifier", target.Identifier),
		zap.Int("angle_min", target.AngleLimits.Min),
		zap.Int("angle_max", target.AngleLimits.Max),
	)
	return target, nil
}

func (l *Loader) readMotor(canonical, key string) (*dxlMotor, error) {
	path := filepath.Join(l.dir, canonical+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var doc map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrStoreUnavailable, path, err)
	}

	motors, ok := doc[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q section", ErrStoreUnavailable, path, canonical)
	}

	node, ok := motors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownDevice, key, canonical)
	}

	var entry motorEntry
	if err := node.Decode(&entry); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMotorEntry, key, err)
	}
	if entry.DxlMotor == nil || entry.DxlMotor.ID == nil ||
		entry.DxlMotor.CWAngleLimit == nil || entry.DxlMotor.CCWAngleLimit == nil {
		return nil, fmt.Errorf("%w: %s needs dxl_motor id, cw_angle_limit and ccw_angle_limit", ErrInvalidMotorEntry, key)
	}
	return entry.DxlMotor, nil
}

// RadiansToDegrees converts a stored limit to whole degrees, rounding half away from zero
func RadiansToDegrees(radians float64) int {
	return int(decimal.NewFromFloat(radians).
		Mul(degreesPerHalf).
		DivRound(pi, 12).
		Round(0).
		IntPart())
}

// DegreesToRadians is the inverse of RadiansToDegrees
func DegreesToRadians(degrees int) float64 {
	f, _ := decimal.NewFromInt(int64(degrees)).Mul(pi).DivRound(degreesPerHalf, 15).Float64()
	return f
}
