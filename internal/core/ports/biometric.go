package ports

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoMatch is returned by Biometric.Match when the captured fingerprint
	// does not match any enrolled user.
	ErrNoMatch = errors.New("fingerprint does not match")
	// ErrCaptureTimeout is returned when no finger is placed on the sensor
	// within the policy timeout.
	ErrCaptureTimeout = errors.New("fingerprint capture timed out")
	// ErrMaxUsersEnrolled ...
	ErrMaxUsersEnrolled = errors.New("max number of users already enrolled")
)

// EnrollPolicy drives a fingerprint enrollment.
type EnrollPolicy struct {
	// Captures is the number of successful captures required.
	Captures       int
	CaptureTimeout time.Duration
	MaxUsers       int
}

// MatchPolicy drives a fingerprint match.
type MatchPolicy struct {
	MinMatches int
	Timeout    time.Duration
}

// Biometric is the fingerprint sensor. The device only consumes the
// outcomes of its operations.
type Biometric interface {
	Enroll(ctx context.Context, policy EnrollPolicy) error
	// Match returns the id of the matched user.
	Match(ctx context.Context, policy MatchPolicy) (int, error)
	EraseOne(id int) error
	EraseAll() error
	IsTouched() bool
	UserCount() (int, error)
}
