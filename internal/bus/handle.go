// internal/bus/handle.go
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"servo-commissioning/internal/utils"
)

var (
	// ErrPortBusy is returned when a handle is already open on the path
	ErrPortBusy = errors.New("serial port already in use")
	// ErrHandleClosed is returned by I/O on a released handle
	ErrHandleClosed = errors.New("bus handle closed")
)

// serialOpen is swapped out in tests
var serialOpen = serial.Open

// Config describes how to open a bus handle
type Config struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// Stats holds traffic counters for one handle
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	OpenedAt     time.Time `json:"opened_at"`
}

// registry tracks which paths have a live handle
var registry = struct {
	sync.Mutex
	open map[string]*Handle
}{open: make(map[string]*Handle)}

// Handle owns one open serial port at one baud rate. It is released exactly
// once; every later Close is a no-op.
type Handle struct {
	config Config
	port   serial.Port
	logger *utils.BusLogger
	mutex  sync.Mutex
	closed atomic.Bool

	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
	errorCount   atomic.Int64
	openedAt     time.Time
}

// Open opens the port at the configured rate, 8N1
func Open(cfg Config, logger *zap.Logger) (*Handle, error) {
	registry.Lock()
	defer registry.Unlock()

	busLogger := utils.NewBusLogger(logger, cfg.Port, cfg.BaudRate)

	if _, busy := registry.open[cfg.Port]; busy {
		busLogger.LogConnection("open", ErrPortBusy)
		return nil, fmt.Errorf("%s: %w", cfg.Port, ErrPortBusy)
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serialOpen(cfg.Port, mode)
	if err != nil {
		busLogger.LogConnection("open", err)
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	h := &Handle{
		config:   cfg,
		port:     port,
		logger:   busLogger,
		openedAt: time.Now(),
	}
	registry.open[cfg.Port] = h

	busLogger.LogConnection("open", nil)
	return h, nil
}

// Path returns the device path
func (h *Handle) Path() string {
	return h.config.Port
}

// BaudRate returns the rate the port was opened at
func (h *Handle) BaudRate() int {
	return h.config.BaudRate
}

// Read reads from the port. A read timeout yields (0, nil).
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrHandleClosed
	}

	n, err := h.port.Read(p)
	if err != nil {
		h.errorCount.Inc()
		return n, fmt.Errorf("serial read failed: %w", err)
	}
	h.bytesRead.Add(int64(n))
	return n, nil
}

// Write writes the whole buffer to the port
func (h *Handle) Write(p []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed.Load() {
		return 0, ErrHandleClosed
	}

	n, err := h.port.Write(p)
	if err != nil {
		h.errorCount.Inc()
		return n, fmt.Errorf("serial write failed: %w", err)
	}
	if n != len(p) {
		h.errorCount.Inc()
		return n, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(p))
	}
	h.bytesWritten.Add(int64(n))
	return n, nil
}

// ResetInputBuffer discards unread input
func (h *Handle) ResetInputBuffer() error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	return h.port.ResetInputBuffer()
}

// SetReadTimeout changes the per-read timeout
func (h *Handle) SetReadTimeout(timeout time.Duration) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	return h.port.SetReadTimeout(timeout)
}

// Close releases the port and the registry slot. Safe to call repeatedly.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.mutex.Lock()
	err := h.port.Close()
	h.mutex.Unlock()

	registry.Lock()
	if registry.open[h.config.Port] == h {
		delete(registry.open, h.config.Port)
	}
	registry.Unlock()

	h.logger.LogConnection("close", err)
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Stats returns a snapshot of the traffic counters
func (h *Handle) Stats() Stats {
	return Stats{
		BytesWritten: h.bytesWritten.Load(),
		BytesRead:    h.bytesRead.Load(),
		ErrorCount:   h.errorCount.Load(),
		OpenedAt:     h.openedAt,
	}
}

// InUse reports whether a handle is currently open on path
func InUse(path string) bool {
	registry.Lock()
	defer registry.Unlock()
	_, ok := registry.open[path]
	return ok
}
