package application_test

import (
	"context"
	"sync"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// **** Transport ****

type fakeTransport struct {
	payloads chan []byte

	lock  sync.Mutex
	stops int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{payloads: make(chan []byte, 32)}
}

func (t *fakeTransport) SetPayload(payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.payloads <- buf
	return nil
}

func (t *fakeTransport) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stops++
}

func (t *fakeTransport) stopped() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stops
}

// **** Biometric ****

type mockBiometric struct {
	mock.Mock
}

func (m *mockBiometric) Enroll(
	ctx context.Context, policy ports.EnrollPolicy,
) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *mockBiometric) Match(
	ctx context.Context, policy ports.MatchPolicy,
) (int, error) {
	args := m.Called(ctx, policy)
	return args.Int(0), args.Error(1)
}

func (m *mockBiometric) EraseOne(id int) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *mockBiometric) EraseAll() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockBiometric) IsTouched() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockBiometric) UserCount() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// **** Battery ****

type mockBattery struct {
	mock.Mock
}

func (m *mockBattery) Millivolts() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// **** Power ****

type mockPowerManager struct {
	mock.Mock
}

func (m *mockPowerManager) Shutdown(code domain.ErrorCode) {
	m.Called(code)
}

func (m *mockPowerManager) Reboot() {
	m.Called()
}
