// internal/commissioning/negotiator.go
package commissioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"servo-commissioning/internal/model"
)

// Negotiator finds the baud rate the attached device answers at
type Negotiator struct {
	opener             Opener
	scanner            *Scanner
	bauds              []int
	reducedVoltageBaud int
	logger             *zap.Logger
}

// NewNegotiator creates a negotiator trying bauds in order
func NewNegotiator(opener Opener, scanner *Scanner, bauds []int, reducedVoltageBaud int, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		opener:             opener,
		scanner:            scanner,
		bauds:              bauds,
		reducedVoltageBaud: reducedVoltageBaud,
		logger:             logger,
	}
}

// Negotiate returns a bus open at the first rate whose scan is non-empty.
// Every other handle it opened is closed before it returns. Reduced-voltage
// servos support a single rate and skip negotiation.
func (n *Negotiator) Negotiate(ctx context.Context, port string, kind model.DeviceKind) (Bus, error) {
	if kind == model.DeviceKindReducedVoltageServo {
		return n.open(port, n.reducedVoltageBaud, kind)
	}

	for _, baud := range n.bauds {
		b, err := n.open(port, baud, kind)
		if err != nil {
			return nil, err
		}

		result, err := n.scanner.Scan(ctx, b)
		if err != nil {
			n.close(b)
			return nil, err
		}
		if result.Class() != ScanEmpty {
			n.logger.Debug("Baud rate negotiated",
				zap.Int("baud_rate", baud),
				zap.Ints("ids", result.IDs),
			)
			return b, nil
		}

		n.logger.Debug("No response at baud rate", zap.Int("baud_rate", baud))
		n.close(b)
	}

	return nil, fmt.Errorf("%w at %v baud", ErrNoDevice, n.bauds)
}

func (n *Negotiator) open(port string, baud int, kind model.DeviceKind) (Bus, error) {
	b, err := n.opener.Open(port, baud, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d baud: %w", ErrPortUnavailable, port, baud, err)
	}
	return b, nil
}

func (n *Negotiator) close(b Bus) {
	if err := b.Close(); err != nil {
		n.logger.Warn("Failed to close bus", zap.Int("baud_rate", b.BaudRate()), zap.Error(err))
	}
}
