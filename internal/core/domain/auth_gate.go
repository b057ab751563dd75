package domain

import "errors"

// MaxAuthFailures is the number of consecutive authentication failures of a
// session that arm the security shutdown.
const MaxAuthFailures = 3

// AuthGate tracks the lock and authorization state of a session.
type AuthGate struct {
	locked        bool
	authorized    bool
	failures      int
	shutdownArmed bool
}

// NewAuthGate returns a gate with the given lock state, not authorized.
func NewAuthGate(locked bool) *AuthGate {
	return &AuthGate{locked: locked}
}

func (g *AuthGate) IsLocked() bool {
	return g.locked
}

func (g *AuthGate) IsAuthorized() bool {
	return g.authorized
}

func (g *AuthGate) Failures() int {
	return g.failures
}

// ShutdownArmed returns whether the device must halt once the current
// reply has been served.
func (g *AuthGate) ShutdownArmed() bool {
	return g.shutdownArmed
}

// LockState returns the tri-state published in the state word.
func (g *AuthGate) LockState() LockState {
	if g.authorized {
		return Authorized
	}
	if g.locked {
		return Locked
	}
	return Unlocked
}

// SetLocked updates the lock state after an enrollment or erasure.
func (g *AuthGate) SetLocked(locked bool) {
	g.locked = locked
	if !locked {
		g.authorized = false
	}
}

// ValidatePin validates the candidate against the record. An unset PIN is
// not counted as a failure.
func (g *AuthGate) ValidatePin(candidate uint32, record *KeyRecord) error {
	err := record.ValidatePin(candidate)
	switch {
	case err == nil:
		g.authorize()
	case errors.Is(err, ErrPinUnset):
		g.authorized = false
	default:
		g.RecordFailure()
	}
	return err
}

// ValidateBiometric applies the outcome of a fingerprint match.
func (g *AuthGate) ValidateBiometric(matched bool) error {
	if !g.locked {
		return ErrMustBeLocked
	}
	if !matched {
		g.RecordFailure()
		return ErrAuthFailed
	}
	g.authorize()
	return nil
}

// RecordFailure clears the authorization and counts one authentication
// failure.
func (g *AuthGate) RecordFailure() {
	g.authorized = false
	g.failures++
	if g.failures >= MaxAuthFailures {
		g.shutdownArmed = true
	}
}

// Consume clears the authorization after a privileged command.
func (g *AuthGate) Consume() {
	g.authorized = false
}

// ArmShutdown is used for protocol security events.
func (g *AuthGate) ArmShutdown() {
	g.shutdownArmed = true
}

func (g *AuthGate) authorize() {
	g.authorized = true
	g.failures = 0
}
