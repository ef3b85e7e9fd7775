// internal/commissioning/interfaces.go
package commissioning

import (
	"context"

	"servo-commissioning/internal/model"
)

// Bus is one open servo bus at a fixed baud rate
type Bus interface {
	Ping(ctx context.Context, id int) (bool, error)
	ModelNumber(ctx context.Context, id int) (int, error)
	ChangeID(ctx context.Context, from, to int) error
	SetAngleLimits(ctx context.Context, id int, limits model.AngleLimits) error
	SetReturnDelay(ctx context.Context, id, delay int) error
	SetTemperatureLimit(ctx context.Context, id, celsius int) error
	SetBaudRate(ctx context.Context, id, baud int) error
	BaudRate() int
	Close() error
}

// Opener opens a bus on a device path for a device kind
type Opener interface {
	Open(port string, baud int, kind model.DeviceKind) (Bus, error)
}

// PortResolver locates the bus adapter
type PortResolver interface {
	Resolve(goos string) (string, error)
}

// ConfigLoader resolves a motor slot to its target configuration
type ConfigLoader interface {
	Load(robotPart, deviceName string) (model.TargetConfig, error)
}

// DFUProbe reports whether a module in DFU mode is attached
type DFUProbe interface {
	Present(ctx context.Context) (bool, error)
}
