// internal/commissioning/opener.go
package commissioning

import (
	"time"

	"go.uber.org/zap"

	"servo-commissioning/internal/bus"
	"servo-commissioning/internal/dynamixel"
	"servo-commissioning/internal/model"
)

// SerialOpener opens Dynamixel buses on real serial ports
type SerialOpener struct {
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewSerialOpener creates an opener. readTimeout bounds each status reply.
func NewSerialOpener(readTimeout time.Duration, logger *zap.Logger) *SerialOpener {
	return &SerialOpener{
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Open opens the port and picks the wire protocol for the device kind
func (o *SerialOpener) Open(port string, baud int, kind model.DeviceKind) (Bus, error) {
	handle, err := bus.Open(bus.Config{
		Port:        port,
		BaudRate:    baud,
		ReadTimeout: o.readTimeout / 2,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	protocol := dynamixel.Protocol1
	if kind == model.DeviceKindReducedVoltageServo {
		protocol = dynamixel.Protocol2
	}
	return dynamixel.NewServoBus(handle, protocol, o.readTimeout), nil
}
