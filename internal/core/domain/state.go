package domain

import "fmt"

// LockState is the tri-state reported in the most significant byte of the
// state word.
type LockState uint8

const (
	Unlocked LockState = iota
	Locked
	Authorized
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ExecState is the outcome of the last dispatched command.
type ExecState uint8

const (
	ExecNotApplicable ExecState = iota
	ExecSuccess
	ExecFail
)

func (s ExecState) String() string {
	switch s {
	case ExecNotApplicable:
		return "n/a"
	case ExecSuccess:
		return "success"
	case ExecFail:
		return "fail"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Reason is the failure reason code of a command outcome.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonInvalidCommand
	ReasonInvalidParameter
	ReasonAuthFailed
	ReasonPinUnset
	ReasonInvalidKeyPath
	ReasonInvalidPin
	ReasonNoteTooLong
	ReasonLockedAlready
	ReasonUnlockedAlready
)

var reasonNames = map[Reason]string{
	ReasonNone:             "none",
	ReasonInvalidCommand:   "invalid command",
	ReasonInvalidParameter: "invalid parameter",
	ReasonAuthFailed:       "authentication failed",
	ReasonPinUnset:         "pin not set",
	ReasonInvalidKeyPath:   "invalid key path",
	ReasonInvalidPin:       "invalid pin",
	ReasonNoteTooLong:      "note too long",
	ReasonLockedAlready:    "locked already",
	ReasonUnlockedAlready:  "unlocked already",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}

// Outcome is the structured result of a dispatched command.
type Outcome struct {
	State  ExecState
	Reason Reason
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return Outcome{State: ExecSuccess}
}

// Failed returns a failed outcome with the given reason.
func Failed(reason Reason) Outcome {
	return Outcome{State: ExecFail, Reason: reason}
}

// StateWord is the packed 32-bit device state published in every response.
type StateWord struct {
	Lock    LockState
	Exec    ExecState
	Command Command
	Reason  Reason
}

// Pack returns the word with the lock state in the most significant byte.
func (w StateWord) Pack() uint32 {
	return uint32(w.Lock)<<24 |
		uint32(w.Exec)<<16 |
		uint32(w.Command)<<8 |
		uint32(w.Reason)
}

// String renders the packed word as 8 uppercase hex digits.
func (w StateWord) String() string {
	return fmt.Sprintf("%08X", w.Pack())
}

// UnpackStateWord is the inverse of StateWord.Pack.
func UnpackStateWord(word uint32) StateWord {
	return StateWord{
		Lock:    LockState(word >> 24),
		Exec:    ExecState(word >> 16),
		Command: Command(word >> 8),
		Reason:  Reason(word),
	}
}
