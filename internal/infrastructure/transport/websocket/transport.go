package wstransport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/skythen/apdu"
	"go.uber.org/ratelimit"
)

const (
	// InsReadBinary reads the reply payload.
	InsReadBinary = 0xB0
	// InsUpdateBinary writes a request.
	InsUpdateBinary = 0xD6

	swSuccess1          = 0x90
	swSuccess2          = 0x00
	swWrongLength1      = 0x67
	swWrongLength2      = 0x00
	swInsNotSupported1  = 0x6D
	swInsNotSupported2  = 0x00
	swUnknownError1     = 0x6F
	swUnknownError2     = 0x00
	defaultReplyTimeout = 2 * time.Second
	defaultWakeTimeout  = 3 * time.Second
)

var (
	// ErrInvalidFrameRate ...
	ErrInvalidFrameRate = errors.New("frame rate must be positive")
	// ErrFieldBusy is returned when a second reader enters the field.
	ErrFieldBusy = errors.New("another reader is in the field")
	// ErrDeviceOff is returned when the device does not boot in time.
	ErrDeviceOff = errors.New("device is off")
)

// EventHandler receives the field and NDEF events of the emulated tag.
type EventHandler interface {
	FieldOn() error
	FieldOff() error
	Written(buf []byte) error
	PayloadRead() error
}

// Waker powers on the device when a reader enters the field.
type Waker interface {
	Wake()
}

// Opts defines the options of the emulated tag.
type Opts struct {
	// FrameRate is the max number of APDUs per second per connection.
	FrameRate int
	// ReplyTimeout bounds the wait for the reply of a written request.
	ReplyTimeout time.Duration
	// WakeTimeout bounds the wait for the device to boot.
	WakeTimeout time.Duration
	Waker       Waker
}

func (o *Opts) validate() error {
	if o.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.WakeTimeout <= 0 {
		o.WakeTimeout = defaultWakeTimeout
	}
	return nil
}

// Transport emulates the contactless tag over websocket: one connection is
// one field-on, field-off span.
type Transport struct {
	opts     Opts
	upgrader websocket.Upgrader

	lock    sync.Mutex
	handler EventHandler
	// ready is closed once the attached device publishes its first payload.
	ready   chan struct{}
	payload []byte
	version uint64
	updated chan struct{}
	busy    bool
	conn    *websocket.Conn
}

// NewTransport returns a detached transport.
func NewTransport(opts Opts) (*Transport, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Transport{
		opts:    opts,
		ready:   make(chan struct{}),
		updated: make(chan struct{}),
	}, nil
}

// Attach enables the tag emulation for the given device. Readers are let in
// the field once the device has set its first payload.
func (t *Transport) Attach(h EventHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.handler = h
	t.payload = nil
}

// Stop disables the tag emulation and drops the reader in the field, if any.
func (t *Transport) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.handler = nil
	if isClosed(t.ready) {
		t.ready = make(chan struct{})
	}
	if t.conn != nil {
		t.conn.Close()
	}
}

// SetPayload replaces the reply served to the reader.
func (t *Transport) SetPayload(payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	t.lock.Lock()
	defer t.lock.Unlock()

	t.payload = buf
	t.version++
	close(t.updated)
	t.updated = make(chan struct{})
	if t.handler != nil && !isClosed(t.ready) {
		close(t.ready)
	}
	return nil
}

// ServeHTTP upgrades the connection of a reader entering the field.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler, err := t.enterField()
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrFieldBusy) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.leaveField(nil)
		log.WithError(err).Warn("failed to upgrade reader connection")
		return
	}

	t.lock.Lock()
	t.conn = conn
	t.lock.Unlock()

	logger := log.WithField("field", uuid.New().String())
	logger.Debug("reader entered the field")
	defer func() {
		t.leaveField(conn)
		if err := handler.FieldOff(); err != nil {
			logger.WithError(err).Debug("field off not delivered")
		}
		logger.Debug("reader left the field")
	}()

	if err := handler.FieldOn(); err != nil {
		logger.WithError(err).Warn("field on not delivered")
		return
	}
	t.serve(conn, handler, logger)
}

func (t *Transport) serve(
	conn *websocket.Conn, handler EventHandler, logger *log.Entry,
) {
	limiter := ratelimit.New(t.opts.FrameRate)
	var replyAfter uint64
	awaitingReply := false

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				logger.WithError(err).Debug("reader connection dropped")
			}
			return
		}
		limiter.Take()

		if msgType != websocket.BinaryMessage {
			if err := writeStatus(conn, swWrongLength1, swWrongLength2); err != nil {
				return
			}
			continue
		}

		capdu, err := apdu.ParseCapdu(msg)
		if err != nil {
			logger.WithError(err).Debug("malformed apdu")
			if err := writeStatus(conn, swWrongLength1, swWrongLength2); err != nil {
				return
			}
			continue
		}

		switch capdu.Ins {
		case InsReadBinary:
			var payload []byte
			if awaitingReply {
				payload = t.waitPayload(replyAfter)
				awaitingReply = false
			} else {
				payload = t.currentPayload()
			}
			if err := writeRapdu(conn, apdu.Rapdu{
				Data: payload, SW1: swSuccess1, SW2: swSuccess2,
			}); err != nil {
				return
			}
			if err := handler.PayloadRead(); err != nil {
				logger.WithError(err).Debug("payload read not delivered")
				return
			}

		case InsUpdateBinary:
			replyAfter = t.payloadVersion()
			if err := handler.Written(capdu.Data); err != nil {
				logger.WithError(err).Warn("request not delivered")
				writeStatus(conn, swUnknownError1, swUnknownError2)
				return
			}
			awaitingReply = true
			if err := writeStatus(conn, swSuccess1, swSuccess2); err != nil {
				return
			}

		default:
			if err := writeStatus(conn, swInsNotSupported1, swInsNotSupported2); err != nil {
				return
			}
		}
	}
}

// enterField returns the handler of the attached device, waking it up if
// needed.
func (t *Transport) enterField() (EventHandler, error) {
	t.lock.Lock()
	if t.busy {
		t.lock.Unlock()
		return nil, ErrFieldBusy
	}
	handler, ready := t.handler, t.ready
	if handler != nil && isClosed(ready) {
		t.busy = true
		t.lock.Unlock()
		return handler, nil
	}
	t.lock.Unlock()

	if handler == nil {
		if t.opts.Waker == nil {
			return nil, ErrDeviceOff
		}
		t.opts.Waker.Wake()
	}
	select {
	case <-ready:
	case <-time.After(t.opts.WakeTimeout):
		return nil, ErrDeviceOff
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.handler == nil {
		return nil, ErrDeviceOff
	}
	if t.busy {
		return nil, ErrFieldBusy
	}
	t.busy = true
	return t.handler, nil
}

func (t *Transport) leaveField(conn *websocket.Conn) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.busy = false
	t.conn = nil
	if conn != nil {
		conn.Close()
	}
}

func (t *Transport) currentPayload() []byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.payload
}

func (t *Transport) payloadVersion() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.version
}

// waitPayload waits for a payload newer than the given version.
func (t *Transport) waitPayload(after uint64) []byte {
	timeout := time.NewTimer(t.opts.ReplyTimeout)
	defer timeout.Stop()

	for {
		t.lock.Lock()
		payload, version, updated := t.payload, t.version, t.updated
		t.lock.Unlock()

		if version > after {
			return payload
		}
		select {
		case <-updated:
		case <-timeout.C:
			return payload
		}
	}
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func writeStatus(conn *websocket.Conn, sw1, sw2 byte) error {
	return writeRapdu(conn, apdu.Rapdu{SW1: sw1, SW2: sw2})
}

func writeRapdu(conn *websocket.Conn, rapdu apdu.Rapdu) error {
	return conn.WriteMessage(websocket.BinaryMessage, rapdu.Bytes())
}
