package domain

import "errors"

var (
	// ErrKeyRecordNotFound is returned by repositories when the device has
	// not been provisioned yet.
	ErrKeyRecordNotFound = errors.New("key record not found")
	// ErrKeyRecordAlreadyExists ...
	ErrKeyRecordAlreadyExists = errors.New("key record already exists")
	// ErrInvalidKeyRecord is returned when a stored record holds invalid
	// master or derivative nodes.
	ErrInvalidKeyRecord = errors.New("key record is not valid")

	// ErrInvalidKeyPath is returned when a new derivation path is malformed
	// or fails the check digit convention.
	ErrInvalidKeyPath = errors.New("derivation path is not valid")
	// ErrInvalidPin is returned when a new PIN is malformed or fails the
	// check digit convention.
	ErrInvalidPin = errors.New("pin is not valid")
	// ErrNoteTooLong ...
	ErrNoteTooLong = errors.New("note exceeds the maximum length")
	// ErrSignatureVerification is returned when a freshly produced signature
	// does not verify against the signing public key.
	ErrSignatureVerification = errors.New("signature verification failed")

	// ErrPinUnset is returned when validating a PIN on a device with the
	// default PIN.
	ErrPinUnset = errors.New("pin is not set")
	// ErrAuthFailed ...
	ErrAuthFailed = errors.New("authentication failed")
	// ErrMustBeLocked is returned when an operation requires an enrolled
	// credential.
	ErrMustBeLocked = errors.New("device must be locked to perform this operation")
	// ErrMustBeUnlocked ...
	ErrMustBeUnlocked = errors.New("device must be unlocked to perform this operation")

	// ErrInvalidSessionID ...
	ErrInvalidSessionID = errors.New("session id does not match")
	// ErrInvalidRequestID ...
	ErrInvalidRequestID = errors.New("request id must be a non zero integer")
	// ErrInvalidCommand ...
	ErrInvalidCommand = errors.New("command is not in the known range")
	// ErrTooManyRecords ...
	ErrTooManyRecords = errors.New("request contains too many records")
	// ErrMissingRecords ...
	ErrMissingRecords = errors.New("request misses mandatory records")
	// ErrRequestTooLarge ...
	ErrRequestTooLarge = errors.New("request exceeds the maximum size")
	// ErrEmptyRequest ...
	ErrEmptyRequest = errors.New("request is empty")
)
