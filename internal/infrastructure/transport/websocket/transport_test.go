package wstransport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	wstransport "github.com/cyphereco/openturnkey/internal/infrastructure/transport/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thanhpk/randstr"
)

func TestTransport(t *testing.T) {
	t.Run("ReadAndWrite", testReadAndWrite())
	t.Run("FieldBusy", testFieldBusy())
	t.Run("DeviceOff", testDeviceOff())
	t.Run("WakeOnField", testWakeOnField())
	t.Run("StopDropsReader", testStopDropsReader())
}

func testReadAndWrite() func(*testing.T) {
	return func(t *testing.T) {
		transport, url := newTestTransport(t, nil)

		handler := &mockHandler{}
		handler.On("FieldOn").Return(nil)
		handler.On("PayloadRead").Return(nil)
		handler.On("FieldOff").Return(nil)

		request := randstr.Bytes(600)
		reply := randstr.Bytes(1500)
		handler.On("Written", request).Run(func(mock.Arguments) {
			go transport.SetPayload(reply)
		}).Return(nil)

		transport.Attach(handler)
		require.NoError(t, transport.SetPayload([]byte("boot")))

		reader := dial(t, url)
		payload, err := reader.ReadPayload()
		require.NoError(t, err)
		require.Equal(t, []byte("boot"), payload)

		require.NoError(t, reader.WritePayload(request))
		payload, err = reader.ReadPayload()
		require.NoError(t, err)
		require.Equal(t, reply, payload)
		require.NoError(t, reader.Close())

		require.Eventually(t, func() bool {
			return handler.called("FieldOff") == 1
		}, time.Second, 10*time.Millisecond)
		handler.AssertNumberOfCalls(t, "FieldOn", 1)
		handler.AssertNumberOfCalls(t, "PayloadRead", 2)
		handler.AssertNumberOfCalls(t, "Written", 1)
	}
}

func testFieldBusy() func(*testing.T) {
	return func(t *testing.T) {
		transport, url := newTestTransport(t, nil)

		handler := &mockHandler{}
		handler.On("FieldOn").Return(nil)
		handler.On("FieldOff").Return(nil)
		transport.Attach(handler)
		require.NoError(t, transport.SetPayload([]byte("boot")))

		reader := dial(t, url)
		defer reader.Close()

		_, err := wstransport.Dial(context.Background(), url)
		require.Error(t, err)
		require.Contains(t, err.Error(), "409")
	}
}

func testDeviceOff() func(*testing.T) {
	return func(t *testing.T) {
		_, url := newTestTransport(t, nil)

		_, err := wstransport.Dial(context.Background(), url)
		require.Error(t, err)
		require.Contains(t, err.Error(), "503")
	}
}

func testWakeOnField() func(*testing.T) {
	return func(t *testing.T) {
		handler := &mockHandler{}
		handler.On("FieldOn").Return(nil)
		handler.On("FieldOff").Return(nil)
		handler.On("PayloadRead").Return(nil)

		waker := &testWaker{}
		transport, url := newTestTransport(t, waker)
		waker.wake = func() {
			transport.Attach(handler)
			transport.SetPayload([]byte("woken"))
		}

		reader := dial(t, url)
		defer reader.Close()

		payload, err := reader.ReadPayload()
		require.NoError(t, err)
		require.Equal(t, []byte("woken"), payload)
	}
}

func testStopDropsReader() func(*testing.T) {
	return func(t *testing.T) {
		transport, url := newTestTransport(t, nil)

		handler := &mockHandler{}
		handler.On("FieldOn").Return(nil)
		handler.On("FieldOff").Return(nil)
		transport.Attach(handler)
		require.NoError(t, transport.SetPayload([]byte("boot")))

		reader := dial(t, url)
		require.Eventually(t, func() bool {
			return handler.called("FieldOn") == 1
		}, time.Second, 10*time.Millisecond)

		transport.Stop()
		_, err := reader.ReadPayload()
		require.Error(t, err)
	}
}

func newTestTransport(
	t *testing.T, waker wstransport.Waker,
) (*wstransport.Transport, string) {
	opts := wstransport.Opts{
		FrameRate:    1000,
		ReplyTimeout: time.Second,
		WakeTimeout:  time.Second,
	}
	if waker != nil {
		opts.Waker = waker
	}
	transport, err := wstransport.NewTransport(opts)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(transport.ServeHTTP))
	t.Cleanup(server.Close)
	return transport, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *wstransport.Reader {
	reader, err := wstransport.Dial(context.Background(), url)
	require.NoError(t, err)
	return reader
}

type mockHandler struct {
	mock.Mock

	lock   sync.Mutex
	counts map[string]int
}

func (m *mockHandler) FieldOn() error {
	m.count("FieldOn")
	args := m.Called()
	return args.Error(0)
}

func (m *mockHandler) FieldOff() error {
	m.count("FieldOff")
	args := m.Called()
	return args.Error(0)
}

func (m *mockHandler) Written(buf []byte) error {
	m.count("Written")
	args := m.Called(buf)
	return args.Error(0)
}

func (m *mockHandler) PayloadRead() error {
	m.count("PayloadRead")
	args := m.Called()
	return args.Error(0)
}

func (m *mockHandler) count(method string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

func (m *mockHandler) called(method string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.counts[method]
}

type testWaker struct {
	wake func()
}

func (w *testWaker) Wake() {
	w.wake()
}
