// internal/model/request.go
package model

import (
	"fmt"
	"strings"
)

// CommissioningRequest identifies what one attempt should configure.
// It is a value: built once per attempt and never mutated afterwards.
type CommissioningRequest struct {
	robotPart  string
	deviceName string
	kind       DeviceKind
}

// NewCommissioningRequest validates and builds a request
func NewCommissioningRequest(robotPart, deviceName string, kind DeviceKind) (CommissioningRequest, error) {
	if !kind.Valid() {
		return CommissioningRequest{}, fmt.Errorf("unknown device kind: %q", kind)
	}
	if strings.TrimSpace(deviceName) == "" {
		return CommissioningRequest{}, fmt.Errorf("device name is required")
	}
	if kind.IsServo() && strings.TrimSpace(robotPart) == "" {
		return CommissioningRequest{}, fmt.Errorf("robot part is required for %s", kind)
	}
	return CommissioningRequest{
		robotPart:  robotPart,
		deviceName: deviceName,
		kind:       kind,
	}, nil
}

func (r CommissioningRequest) RobotPart() string  { return r.robotPart }
func (r CommissioningRequest) DeviceName() string { return r.deviceName }
func (r CommissioningRequest) Kind() DeviceKind   { return r.kind }

// Key identifies the target slot of the request
func (r CommissioningRequest) Key() string {
	if r.robotPart == "" {
		return r.deviceName
	}
	return r.robotPart + "/" + r.deviceName
}

func (r CommissioningRequest) String() string {
	return fmt.Sprintf("%s (%s)", r.Key(), r.kind)
}

// RobotPart is a named group of motor slots
type RobotPart struct {
	Name      string      `json:"name"`
	Canonical string      `json:"canonical"`
	Kind      DeviceKind  `json:"kind"`
	Slots     []MotorSlot `json:"slots"`
}

// MotorSlot maps a human-facing motor name to its key in the configuration store
type MotorSlot struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	Identifier int    `json:"identifier"`
}

// Slot finds a slot by display name or store key
func (p RobotPart) Slot(name string) (MotorSlot, bool) {
	for _, s := range p.Slots {
		if s.Name == name || s.Key == name {
			return s, true
		}
	}
	return MotorSlot{}, false
}

// Module maps a human-facing module name to its firmware binary
type Module struct {
	Name   string `json:"name"`
	Binary string `json:"binary"`
}
