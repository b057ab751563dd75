package domain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
)

const (
	// DefaultPin is the value of an unset PIN.
	DefaultPin uint32 = 0xFFFFFFFF
	// MaxNoteLength is the max length in bytes of the free text note.
	MaxNoteLength = 64
	// PinFailuresPerCooldown is the number of consecutive wrong PINs that
	// add one boot of cooldown.
	PinFailuresPerCooldown = 3

	serialNumberLength = 10
)

// KeyRecord is the persisted key material of the device. Exactly one record
// exists per device.
type KeyRecord struct {
	Master          *hdkey.Node
	Derivative      *hdkey.Node
	Path            hdkey.DerivationPath
	Pin             uint32
	PinAuthFailures uint32
	PinRetryAfter   uint32
	Note            string
}

// NewKeyRecord derives the master node from the given seed and the
// derivative node for the given path. The PIN is unset.
func NewKeyRecord(
	seed []byte, path hdkey.DerivationPath, allowHardened bool,
) (*KeyRecord, error) {
	master, err := hdkey.NewMasterNode(seed)
	if err != nil {
		return nil, err
	}
	derivative, err := hdkey.DerivePath(master, path, allowHardened)
	if err != nil {
		master.Zero()
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyPath, err)
	}

	return &KeyRecord{
		Master:     master,
		Derivative: derivative,
		Path:       path.Copy(),
		Pin:        DefaultPin,
	}, nil
}

// Validate returns an error if the record holds invalid nodes or path.
func (r *KeyRecord) Validate() error {
	if r.Master == nil || !r.Master.IsValid() {
		return fmt.Errorf("%w: invalid master node", ErrInvalidKeyRecord)
	}
	if r.Derivative == nil || !r.Derivative.IsValid() {
		return fmt.Errorf("%w: invalid derivative node", ErrInvalidKeyRecord)
	}
	if len(r.Path) != hdkey.PathDepth {
		return fmt.Errorf("%w: invalid path", ErrInvalidKeyRecord)
	}
	if len(r.Note) > MaxNoteLength {
		return fmt.Errorf("%w: %s", ErrInvalidKeyRecord, ErrNoteTooLong)
	}
	return nil
}

// SetPath recomputes the derivative node for the given path. The record is
// left unchanged on failure.
func (r *KeyRecord) SetPath(path hdkey.DerivationPath, allowHardened bool) error {
	derivative, err := hdkey.DerivePath(r.Master, path, allowHardened)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKeyPath, err)
	}

	if r.Derivative != nil {
		r.Derivative.Zero()
	}
	r.Derivative = derivative
	r.Path = path.Copy()
	return nil
}

// SetPin replaces the PIN and clears the failure counters.
func (r *KeyRecord) SetPin(pin uint32) error {
	if pin == DefaultPin {
		return ErrInvalidPin
	}
	r.Pin = pin
	r.PinAuthFailures = 0
	r.PinRetryAfter = 0
	return nil
}

// SetNote replaces the free text note.
func (r *KeyRecord) SetNote(note string) error {
	if len(note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	r.Note = note
	return nil
}

// ResetCredentials unsets the PIN and clears the note.
func (r *KeyRecord) ResetCredentials() {
	r.Pin = DefaultPin
	r.PinAuthFailures = 0
	r.PinRetryAfter = 0
	r.Note = ""
}

// IsPinSet returns whether the PIN differs from DefaultPin.
func (r *KeyRecord) IsPinSet() bool {
	return r.Pin != DefaultPin
}

// ValidatePin compares the candidate against the stored PIN and updates the
// persisted failure counters. While a cooldown is pending every candidate is
// rejected.
func (r *KeyRecord) ValidatePin(candidate uint32) error {
	if !r.IsPinSet() {
		return ErrPinUnset
	}
	if r.PinRetryAfter > 0 {
		return fmt.Errorf("%w: pin retry available in %d boots",
			ErrAuthFailed, r.PinRetryAfter)
	}
	if candidate != r.Pin {
		r.PinAuthFailures++
		if r.PinAuthFailures%PinFailuresPerCooldown == 0 {
			r.PinRetryAfter++
		}
		return ErrAuthFailed
	}

	r.PinAuthFailures = 0
	return nil
}

// ElapseCooldown consumes one boot of PIN retry cooldown. It returns whether
// the record changed.
func (r *KeyRecord) ElapseCooldown() bool {
	if r.PinRetryAfter == 0 {
		return false
	}
	r.PinRetryAfter--
	return true
}

// SigningNode returns the master node if useMaster is true, the derivative
// one otherwise.
func (r *KeyRecord) SigningNode(useMaster bool) *hdkey.Node {
	if useMaster {
		return r.Master
	}
	return r.Derivative
}

// Sign signs the given 32-byte hash and verifies the result against the
// signing public key. A signature that does not verify is erased.
func (r *KeyRecord) Sign(hash []byte, useMaster bool) (*hdkey.Signature, error) {
	node := r.SigningNode(useMaster)
	sig, err := hdkey.Sign(node.PrivateKey, hash)
	if err != nil {
		return nil, err
	}
	if !hdkey.Verify(node.PublicKey, hash, sig) {
		sig.Erase()
		return nil, ErrSignatureVerification
	}
	return sig, nil
}

// SerialNumber returns the last characters of the master address.
func (r *KeyRecord) SerialNumber(net *chaincfg.Params) string {
	addr := r.Master.Address(net)
	if len(addr) <= serialNumberLength {
		return addr
	}
	return addr[len(addr)-serialNumberLength:]
}

// Zero wipes the key material of the record.
func (r *KeyRecord) Zero() {
	if r.Master != nil {
		r.Master.Zero()
	}
	if r.Derivative != nil {
		r.Derivative.Zero()
	}
}
