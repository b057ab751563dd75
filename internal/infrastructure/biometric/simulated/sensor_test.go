package fpsim_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/ports"
	fpsim "github.com/cyphereco/openturnkey/internal/infrastructure/biometric/simulated"
	badgerstore "github.com/cyphereco/openturnkey/internal/infrastructure/storage/badger"
	"github.com/stretchr/testify/require"
)

var (
	enrollPolicy = ports.EnrollPolicy{
		Captures:       3,
		CaptureTimeout: time.Second,
		MaxUsers:       1,
	}
	matchPolicy = ports.MatchPolicy{
		MinMatches: 1,
		Timeout:    200 * time.Millisecond,
	}
)

func TestSensor(t *testing.T) {
	t.Run("EnrollAndMatch", testEnrollAndMatch())
	t.Run("EnrollMismatch", testEnrollMismatch())
	t.Run("MaxUsers", testMaxUsers())
	t.Run("Erase", testErase())
	t.Run("StaleCaptures", testStaleCaptures())
	t.Run("Persistence", testPersistence())
	t.Run("TouchHandler", testTouchHandler())
	t.Run("HTTPHandler", testHTTPHandler())
}

func testEnrollAndMatch() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		enroll(t, sensor, "thumb")

		count, err := sensor.UserCount()
		require.NoError(t, err)
		require.Equal(t, 1, count)

		require.NoError(t, sensor.Touch("thumb"))
		id, err := sensor.Match(context.Background(), matchPolicy)
		require.NoError(t, err)
		require.Zero(t, id)

		require.NoError(t, sensor.Touch("index"))
		_, err = sensor.Match(context.Background(), matchPolicy)
		require.ErrorIs(t, err, ports.ErrNoMatch)

		_, err = sensor.Match(context.Background(), matchPolicy)
		require.ErrorIs(t, err, ports.ErrCaptureTimeout)
	}
}

func testEnrollMismatch() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)

		require.NoError(t, sensor.Touch("thumb"))
		require.NoError(t, sensor.Touch("index"))

		err := sensor.Enroll(context.Background(), enrollPolicy)
		require.ErrorIs(t, err, fpsim.ErrFingerMismatch)
		count, _ := sensor.UserCount()
		require.Zero(t, count)
	}
}

func testMaxUsers() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		enroll(t, sensor, "thumb")

		err := sensor.Enroll(context.Background(), enrollPolicy)
		require.ErrorIs(t, err, ports.ErrMaxUsersEnrolled)
	}
}

func testErase() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		enroll(t, sensor, "thumb")

		require.ErrorIs(t, sensor.EraseOne(1), fpsim.ErrUnknownUser)
		require.NoError(t, sensor.EraseOne(0))
		require.Empty(t, sensor.Users())

		enroll(t, sensor, "index")
		require.NoError(t, sensor.EraseAll())
		count, _ := sensor.UserCount()
		require.Zero(t, count)
	}
}

func testStaleCaptures() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		enroll(t, sensor, "thumb")

		require.NoError(t, sensor.Touch("thumb"))
		sensor.Attach(nil)

		_, err := sensor.Match(context.Background(), matchPolicy)
		require.ErrorIs(t, err, ports.ErrCaptureTimeout)
	}
}

func testPersistence() func(*testing.T) {
	return func(t *testing.T) {
		dir := t.TempDir()
		store, err := badgerstore.OpenStore(dir, nil)
		require.NoError(t, err)

		sensor, err := fpsim.NewSensor(store.Store)
		require.NoError(t, err)
		enroll(t, sensor, "thumb")
		require.NoError(t, store.Close())

		store, err = badgerstore.OpenStore(dir, nil)
		require.NoError(t, err)
		defer store.Close()

		sensor, err = fpsim.NewSensor(store.Store)
		require.NoError(t, err)
		require.Equal(t, []string{"thumb"}, sensor.Users())

		require.NoError(t, sensor.EraseAll())
		sensor, err = fpsim.NewSensor(store.Store)
		require.NoError(t, err)
		require.Empty(t, sensor.Users())
	}
}

func testTouchHandler() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		handler := &countingHandler{}
		sensor.Attach(handler)

		require.ErrorIs(t, sensor.Touch(""), fpsim.ErrInvalidFinger)
		require.NoError(t, sensor.Touch("thumb"))
		require.True(t, sensor.IsTouched())
		sensor.Release()
		require.False(t, sensor.IsTouched())
		require.Equal(t, 1, handler.touches)
	}
}

func testHTTPHandler() func(*testing.T) {
	return func(t *testing.T) {
		sensor := newTestSensor(t)
		server := httptest.NewServer(sensor.Handler("/fps"))
		defer server.Close()

		resp, err := http.Post(server.URL+"/fps/touch?finger=thumb", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.True(t, sensor.IsTouched())

		resp, err = http.Post(server.URL+"/fps/release", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.False(t, sensor.IsTouched())

		resp, err = http.Post(
			server.URL+"/fps/touch?finger=thumb&hold=50ms", "", nil,
		)
		require.NoError(t, err)
		resp.Body.Close()
		require.Eventually(t, func() bool {
			return !sensor.IsTouched()
		}, time.Second, 10*time.Millisecond)

		resp, err = http.Post(server.URL+"/fps/touch?finger=thumb&hold=x", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Post(server.URL+"/fps/touch", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Get(server.URL + "/fps/status")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func newTestSensor(t *testing.T) *fpsim.Sensor {
	sensor, err := fpsim.NewSensor(nil)
	require.NoError(t, err)
	return sensor
}

func enroll(t *testing.T, sensor *fpsim.Sensor, finger string) {
	errC := make(chan error, 1)
	go func() {
		errC <- sensor.Enroll(context.Background(), enrollPolicy)
	}()
	for i := 0; i < enrollPolicy.Captures; i++ {
		require.NoError(t, sensor.Touch(finger))
		sensor.Release()
	}
	require.NoError(t, <-errC)
}

type countingHandler struct {
	touches int
}

func (h *countingHandler) Touched() error {
	h.touches++
	return nil
}
