// internal/commissioning/scanner.go
package commissioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ScanClass classifies a scan by the number of responders
type ScanClass int

const (
	ScanEmpty ScanClass = iota
	ScanSingle
	ScanMultiple
)

func (c ScanClass) String() string {
	switch c {
	case ScanEmpty:
		return "empty"
	case ScanSingle:
		return "single"
	default:
		return "multiple"
	}
}

// ScanResult lists responding identifiers in ascending order
type ScanResult struct {
	IDs []int
}

// Class classifies the result
func (r ScanResult) Class() ScanClass {
	switch len(r.IDs) {
	case 0:
		return ScanEmpty
	case 1:
		return ScanSingle
	default:
		return ScanMultiple
	}
}

// Scanner pings every identifier of an inclusive range
type Scanner struct {
	minID  int
	maxID  int
	logger *zap.Logger
}

// NewScanner creates a scanner over [minID, maxID]
func NewScanner(minID, maxID int, logger *zap.Logger) *Scanner {
	return &Scanner{
		minID:  minID,
		maxID:  maxID,
		logger: logger,
	}
}

// Scan pings the range in ascending order. It has no side effects on the
// devices and may be repeated on the same bus.
func (s *Scanner) Scan(ctx context.Context, b Bus) (ScanResult, error) {
	result := ScanResult{IDs: []int{}}

	for id := s.minID; id <= s.maxID; id++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: scan cancelled at id %d: %w", ErrCommunication, id, err)
		}

		present, err := b.Ping(ctx, id)
		if err != nil {
			return result, fmt.Errorf("%w: scan aborted at id %d: %w", ErrCommunication, id, err)
		}
		if present {
			result.IDs = append(result.IDs, id)
		}
	}

	s.logger.Debug("Bus scan complete",
		zap.Int("baud_rate", b.BaudRate()),
		zap.Ints("ids", result.IDs),
		zap.Stringer("class", result.Class()),
	)
	return result, nil
}
