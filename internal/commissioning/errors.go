// internal/commissioning/errors.go
package commissioning

import (
	"errors"

	"servo-commissioning/internal/bus"
	"servo-commissioning/internal/model"
)

var (
	// ErrAttemptInProgress is returned by Runner.Start while an attempt is running
	ErrAttemptInProgress = errors.New("a commissioning attempt is already in progress")

	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrNoDevice        = errors.New("no device detected")
	ErrCommunication   = errors.New("bus communication failed")
	ErrImageNotFound   = errors.New("firmware image not found")
	ErrDFUNotPresent   = errors.New("dfu device not present")
)

// outcomeKindFor maps pre-configuration errors onto outcome kinds
func outcomeKindFor(err error) model.OutcomeKind {
	switch {
	case errors.Is(err, bus.ErrPortNotFound), errors.Is(err, ErrPortUnavailable):
		return model.OutcomePortNotFound
	case errors.Is(err, ErrNoDevice):
		return model.OutcomeNoDeviceDetected
	default:
		return model.OutcomeCommunicationTimeout
	}
}

// failureFor builds the failure outcome for a pre-configuration error
func failureFor(err error) model.Outcome {
	kind := outcomeKindFor(err)

	var detail string
	switch kind {
	case model.OutcomePortNotFound:
		detail = "No serial port found for the servo bus."
	case model.OutcomeNoDeviceDetected:
		detail = "No motor detected."
	default:
		detail = "Communication with the bus failed."
	}
	return model.Failure(kind, detail, err)
}
