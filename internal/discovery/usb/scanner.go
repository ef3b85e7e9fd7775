// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Device describes one USB device matching the probe
type Device struct {
	Bus       int    `json:"bus"`
	Address   int    `json:"address"`
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Location  string `json:"location"`
}

// Config for the DFU probe
type Config struct {
	VendorID    string        `json:"vendor_id"`
	ProductID   string        `json:"product_id"`
	ScanTimeout time.Duration `json:"scan_timeout"`
	EnableDebug bool          `json:"enable_debug"`
}

// Scanner looks for modules attached in DFU mode. Devices are matched on
// their descriptors only and never opened.
type Scanner struct {
	logger  *zap.Logger
	vendor  gousb.ID
	product gousb.ID
	config  *Config
}

// NewScanner creates a DFU probe for the configured vendor/product pair
func NewScanner(logger *zap.Logger, config *Config) (*Scanner, error) {
	vendor, err := ParseID(config.VendorID)
	if err != nil {
		return nil, fmt.Errorf("invalid vendor id: %w", err)
	}
	product, err := ParseID(config.ProductID)
	if err != nil {
		return nil, fmt.Errorf("invalid product id: %w", err)
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 5 * time.Second
	}

	return &Scanner{
		logger:  logger.With(zap.String("scanner", "usb_dfu")),
		vendor:  vendor,
		product: product,
		config:  config,
	}, nil
}

// ParseID parses a hexadecimal USB vendor or product id such as "0483"
func ParseID(s string) (gousb.ID, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse usb id %q: %w", s, err)
	}
	return gousb.ID(v), nil
}

// Present reports whether at least one DFU device is attached
func (s *Scanner) Present(ctx context.Context) (bool, error) {
	devices, err := s.Scan(ctx)
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}

// Scan lists attached devices in DFU mode
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	type result struct {
		devices []Device
		err     error
	}
	done := make(chan result, 1)

	go func() {
		devices, err := s.enumerate()
		done <- result{devices, err}
	}()

	select {
	case <-scanCtx.Done():
		return nil, fmt.Errorf("usb scan: %w", scanCtx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		s.logger.Debug("USB DFU scan completed",
			zap.Int("devices_found", len(r.devices)),
			zap.Duration("scan_duration", time.Since(startTime)),
		)
		return r.devices, nil
	}
}

func (s *Scanner) enumerate() ([]Device, error) {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	debugLevel := 0
	if s.config.EnableDebug {
		debugLevel = 3
	}
	usbCtx.Debug(debugLevel)

	var found []Device
	seen := make(map[string]bool)

	// the filter returns false so nothing is opened
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !s.matches(desc) {
			return false
		}
		d := describe(desc)
		if !seen[d.Location] {
			seen[d.Location] = true
			found = append(found, d)
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return found, nil
}

func (s *Scanner) matches(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == s.vendor && desc.Product == s.product
}

func describe(desc *gousb.DeviceDesc) Device {
	return Device{
		Bus:       desc.Bus,
		Address:   desc.Address,
		VendorID:  desc.Vendor.String(),
		ProductID: desc.Product.String(),
		Location:  fmt.Sprintf("USB-Bus%d-Port%d", desc.Bus, desc.Address),
	}
}
