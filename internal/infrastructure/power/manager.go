package power

import (
	"context"
	"sync"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// State is the power state of the device.
type State uint8

const (
	On State = iota
	Off
	Rebooting
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "rebooting"
	}
}

// Manager simulates the power management unit: it records the halts
// applied by the device and wakes it up when a reader enters the field.
type Manager struct {
	lock      sync.Mutex
	state     State
	lastCode  domain.ErrorCode
	shutdowns int
	reboots   int
	wake      chan struct{}
}

func NewManager() *Manager {
	return &Manager{wake: make(chan struct{}, 1)}
}

func (m *Manager) Shutdown(code domain.ErrorCode) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.state = Off
	m.lastCode = code
	m.shutdowns++
	// Wake requests received while running are stale.
	m.drainWake()

	entry := log.WithField("code", code.String())
	if code != domain.NoError {
		entry.Warn("device powered off on error")
		return
	}
	entry.Info("device powered off")
}

func (m *Manager) Reboot() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.state = Rebooting
	m.reboots++
	log.Info("device rebooting")
}

// PowerOn marks the device as running.
func (m *Manager) PowerOn() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.state = On
}

// Wake requests the device to power on. Requests are coalesced.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// WaitWake blocks until a wake request arrives or the context is done.
func (m *Manager) WaitWake(ctx context.Context) error {
	select {
	case <-m.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the power state and the code of the last shutdown.
func (m *Manager) Status() (State, domain.ErrorCode) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state, m.lastCode
}

// Counters returns the number of shutdowns and reboots applied so far.
func (m *Manager) Counters() (shutdowns, reboots int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.shutdowns, m.reboots
}

func (m *Manager) drainWake() {
	select {
	case <-m.wake:
	default:
	}
}
