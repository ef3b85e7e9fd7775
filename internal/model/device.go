// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DeviceKind represents the variant of device being commissioned
type DeviceKind string

const (
	DeviceKindStandardServo       DeviceKind = "STANDARD_SERVO"
	DeviceKindReducedVoltageServo DeviceKind = "REDUCED_VOLTAGE_SERVO"
	DeviceKindFirmwareModule      DeviceKind = "FIRMWARE_MODULE"
)

// IsServo reports whether the kind is commissioned over the servo bus
func (k DeviceKind) IsServo() bool {
	return k == DeviceKindStandardServo || k == DeviceKindReducedVoltageServo
}

// Valid checks the kind against the known variants
func (k DeviceKind) Valid() bool {
	switch k {
	case DeviceKindStandardServo, DeviceKindReducedVoltageServo, DeviceKindFirmwareModule:
		return true
	}
	return false
}

// ParseDeviceKind parses a kind from its wire form
func ParseDeviceKind(s string) (DeviceKind, error) {
	k := DeviceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown device kind: %q", s)
	}
	return k, nil
}

// AngleLimits holds the clockwise/counter-clockwise limits in integer degrees
type AngleLimits struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// TargetConfig is the configuration a device must end up with
type TargetConfig struct {
	Identifier       int         `json:"identifier"`
	AngleLimits      AngleLimits `json:"angle_limits"`
	BaudRate         int         `json:"baud_rate"`
	TemperatureLimit int         `json:"temperature_limit"`
	ReturnDelay      int         `json:"return_delay"`
}

// Device represents one physical actuator found on the bus during an attempt.
// It is never persisted.
type Device struct {
	Identifier       int         `json:"identifier"`
	ModelNumber      int         `json:"model_number"`
	BaudRate         int         `json:"baud_rate"`
	AngleLimits      AngleLimits `json:"angle_limits"`
	TemperatureLimit int         `json:"temperature_limit"`
	ReturnDelay      int         `json:"return_delay"`
	Kind             DeviceKind  `json:"kind"`
}

// Apply returns a copy of the device carrying the target configuration
func (d Device) Apply(target TargetConfig) Device {
	d.Identifier = target.Identifier
	d.AngleLimits = target.AngleLimits
	d.BaudRate = target.BaudRate
	d.TemperatureLimit = target.TemperatureLimit
	d.ReturnDelay = target.ReturnDelay
	return d
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
