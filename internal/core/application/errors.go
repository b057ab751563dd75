package application

import (
	"errors"
	"fmt"

	"github.com/cyphereco/openturnkey/internal/core/domain"
)

var (
	// ErrNilRepository ...
	ErrNilRepository = errors.New("key record repository must not be nil")
	// ErrNilTransport ...
	ErrNilTransport = errors.New("transport must not be nil")
	// ErrNilCodec ...
	ErrNilCodec = errors.New("record codec must not be nil")
	// ErrNilBiometric ...
	ErrNilBiometric = errors.New("biometric sensor must not be nil")
	// ErrNilBattery ...
	ErrNilBattery = errors.New("battery must not be nil")
	// ErrNilPowerManager ...
	ErrNilPowerManager = errors.New("power manager must not be nil")
	// ErrNilNetwork ...
	ErrNilNetwork = errors.New("network must not be nil")
	// ErrInvalidStandbyTimeout ...
	ErrInvalidStandbyTimeout = errors.New("standby timeout must be positive")
	// ErrInvalidQueueCapacity ...
	ErrInvalidQueueCapacity = errors.New("task queue capacity must be positive")
	// ErrInvalidEnrollPolicy ...
	ErrInvalidEnrollPolicy = errors.New("enroll policy requires 3 to 5 captures")

	// ErrTaskQueueFull is returned when posting to a full task queue. The
	// device halts with SchedError right after.
	ErrTaskQueueFull = errors.New("task queue is full")
	// ErrDeviceHalted is returned when posting events to a halted device.
	ErrDeviceHalted = errors.New("device is halted")
	// ErrMalformedRecords ...
	ErrMalformedRecords = errors.New("request records are malformed")
	// ErrInvalidSignData is returned when a hash to sign is not 32 bytes of
	// hex encoded data.
	ErrInvalidSignData = errors.New("sign data must be hex encoded 32-byte hashes")
	// ErrTooManySignatures ...
	ErrTooManySignatures = errors.New("session data exceeds the max size")
	// ErrInvalidResponse is returned by ParseResponse for records that do not
	// match the reply layout.
	ErrInvalidResponse = errors.New("response records are not valid")
)

// haltError is a fatal error that stops the device with the given code.
type haltError struct {
	code domain.ErrorCode
	err  error
}

func newHaltError(code domain.ErrorCode, err error) error {
	return &haltError{code, err}
}

func (e *haltError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.err)
}

func (e *haltError) Unwrap() error {
	return e.err
}
