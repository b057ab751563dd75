package battery

import (
	"errors"
	"sync"
)

const (
	// MinMillivolts and MaxMillivolts bound the simulated ADC readings.
	MinMillivolts = 3000
	MaxMillivolts = 4300
)

var (
	// ErrInvalidMillivolts ...
	ErrInvalidMillivolts = errors.New("battery voltage out of range")
)

// Static is a battery whose voltage is set by the operator.
type Static struct {
	lock       sync.RWMutex
	millivolts int
}

// NewStatic returns a battery reporting the given voltage.
func NewStatic(millivolts int) (*Static, error) {
	b := &Static{}
	if err := b.SetMillivolts(millivolts); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Static) Millivolts() (int, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.millivolts, nil
}

// SetMillivolts simulates a new voltage reading.
func (b *Static) SetMillivolts(millivolts int) error {
	if millivolts < MinMillivolts || millivolts > MaxMillivolts {
		return ErrInvalidMillivolts
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.millivolts = millivolts
	return nil
}
