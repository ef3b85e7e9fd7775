// internal/model/outcome.go
package model

import "fmt"

// OutcomeKind is the load-bearing part of a commissioning result
type OutcomeKind string

const (
	OutcomeSuccess                 OutcomeKind = "SUCCESS"
	OutcomePortNotFound            OutcomeKind = "PORT_NOT_FOUND"
	OutcomeCommunicationTimeout    OutcomeKind = "COMMUNICATION_TIMEOUT"
	OutcomeNoDeviceDetected        OutcomeKind = "NO_DEVICE_DETECTED"
	OutcomeMultipleDevicesDetected OutcomeKind = "MULTIPLE_DEVICES_DETECTED"
	OutcomeConfigurationTimeout    OutcomeKind = "CONFIGURATION_TIMEOUT"
	OutcomeFlashFailed             OutcomeKind = "FLASH_FAILED"
)

// Outcome is the terminal result of one attempt
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Detail      string      `json:"detail"`
	DetectedIDs []int       `json:"detected_ids,omitempty"`
	Device      *Device     `json:"device,omitempty"`
	Err         error       `json:"-"`
}

// Succeeded reports whether the attempt completed every step
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Error renders failures as an error value; nil on success
func (o Outcome) Error() error {
	if o.Succeeded() {
		return nil
	}
	if o.Err != nil {
		return fmt.Errorf("%s: %s: %w", o.Kind, o.Detail, o.Err)
	}
	return fmt.Errorf("%s: %s", o.Kind, o.Detail)
}

// Success builds a success outcome
func Success(detail string, device *Device) Outcome {
	return Outcome{Kind: OutcomeSuccess, Detail: detail, Device: device}
}

// Failure builds a failure outcome of the given kind
func Failure(kind OutcomeKind, detail string, err error) Outcome {
	return Outcome{Kind: kind, Detail: detail, Err: err}
}
