// internal/dynamixel/servo.go
package dynamixel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"servo-commissioning/internal/model"
)

// Port is an open serial transport that can be closed
type Port interface {
	Transport
	io.Closer
	Closed() bool
	BaudRate() int
}

// ServoBus exposes the commissioning operations for Dynamixel servos on one port
type ServoBus struct {
	client *Client
	port   Port

	mu     sync.RWMutex
	family *Family
}

// NewServoBus wraps an open port. Position and temperature encodings start
// from the protocol's default family until a model number has been read.
func NewServoBus(port Port, protocol Protocol, timeout time.Duration) *ServoBus {
	return &ServoBus{
		client: NewClient(port, protocol, timeout),
		port:   port,
		family: DefaultFamily(protocol),
	}
}

// Family returns the servo family currently assumed for encodings
func (b *ServoBus) Family() *Family {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.family
}

// BaudRate returns the rate the underlying port was opened at
func (b *ServoBus) BaudRate() int {
	return b.port.BaudRate()
}

// Ping reports whether a device answered at id. A missing or corrupt reply
// is absence; only transport failures are returned as errors.
func (b *ServoBus) Ping(ctx context.Context, id int) (bool, error) {
	err := b.client.Ping(ctx, id)
	if err == nil {
		return true, nil
	}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return true, nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrChecksum):
		return false, nil
	default:
		return false, err
	}
}

// ModelNumber reads the model number register and selects the matching family
func (b *ServoBus) ModelNumber(ctx context.Context, id int) (int, error) {
	data, err := b.client.Read(ctx, id, AddrModelNumber, 2)
	if err != nil {
		return 0, fmt.Errorf("failed to read model number of servo %d: %w", id, err)
	}

	modelNumber := int(binary.LittleEndian.Uint16(data))

	b.mu.Lock()
	b.family = FamilyForModel(modelNumber, b.family)
	b.mu.Unlock()

	return modelNumber, nil
}

// ChangeID moves a device from one identifier to another. The status reply
// is accepted from either identifier.
func (b *ServoBus) ChangeID(ctx context.Context, from, to int) error {
	if to < 0 || to > MaxID {
		return fmt.Errorf("identifier %d out of range", to)
	}
	if err := b.client.writeAccepting(ctx, from, AddrID, []byte{byte(to)}, from, to); err != nil {
		return fmt.Errorf("failed to change servo id %d to %d: %w", from, to, err)
	}
	return nil
}

// SetAngleLimits writes the clockwise and counter-clockwise limits in one packet
func (b *ServoBus) SetAngleLimits(ctx context.Context, id int, limits model.AngleLimits) error {
	family := b.Family()
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], uint16(family.DegreesToPosition(limits.Min)))
	binary.LittleEndian.PutUint16(data[2:4], uint16(family.DegreesToPosition(limits.Max)))

	if err := b.client.Write(ctx, id, AddrCWLimit, data); err != nil {
		return fmt.Errorf("failed to write angle limits of servo %d: %w", id, err)
	}
	return nil
}

// SetReturnDelay writes the raw return delay register value
func (b *ServoBus) SetReturnDelay(ctx context.Context, id, delay int) error {
	if delay < 0 || delay > 0xFE {
		return fmt.Errorf("return delay %d out of range", delay)
	}
	if err := b.client.Write(ctx, id, AddrReturnDelay, []byte{byte(delay)}); err != nil {
		return fmt.Errorf("failed to write return delay of servo %d: %w", id, err)
	}
	return nil
}

// SetTemperatureLimit writes the highest temperature limit in degrees Celsius
func (b *ServoBus) SetTemperatureLimit(ctx context.Context, id, celsius int) error {
	if celsius < 0 || celsius > 0xFF {
		return fmt.Errorf("temperature limit %d out of range", celsius)
	}
	family := b.Family()
	if err := b.client.Write(ctx, id, family.AddrTemperature, []byte{byte(celsius)}); err != nil {
		return fmt.Errorf("failed to write temperature limit of servo %d: %w", id, err)
	}
	return nil
}

// SetBaudRate writes the baud rate register. The device answers at the old
// rate and switches afterwards, so this must be the last write on the handle.
func (b *ServoBus) SetBaudRate(ctx context.Context, id, baud int) error {
	value, err := b.Family().EncodeBaud(baud)
	if err != nil {
		return err
	}
	if err := b.client.Write(ctx, id, AddrBaudRate, []byte{value}); err != nil {
		return fmt.Errorf("failed to write baud rate of servo %d: %w", id, err)
	}
	return nil
}

// Close releases the port
func (b *ServoBus) Close() error {
	return b.port.Close()
}

// Closed reports whether the port was released
func (b *ServoBus) Closed() bool {
	return b.port.Closed()
}
