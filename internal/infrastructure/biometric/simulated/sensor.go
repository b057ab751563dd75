package fpsim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	templatesKey = "fingerprint_templates"
	maxPending   = 8
)

var (
	// ErrInvalidFinger ...
	ErrInvalidFinger = errors.New("finger name must not be empty")
	// ErrFingerMismatch is returned when the captures of an enrollment come
	// from different fingers.
	ErrFingerMismatch = errors.New("enrollment captures do not match")
	// ErrUnknownUser ...
	ErrUnknownUser = errors.New("unknown fingerprint user")
)

// TouchHandler is notified whenever a finger is placed on the sensor.
type TouchHandler interface {
	Touched() error
}

// Sensor simulates a fingerprint sensor: fingers are identified by name,
// each Touch queues a capture consumed by the next Enroll or Match step.
type Sensor struct {
	store *badgerhold.Store

	lock     sync.Mutex
	users    []string
	finger   string
	pending  []string
	captured chan struct{}
	handler  TouchHandler
}

// templates is the persisted list of enrolled fingers, indexed by user id.
type templates struct {
	Fingers []string
}

// NewSensor returns a sensor whose templates are persisted in the given
// store. A nil store keeps them in memory.
func NewSensor(store *badgerhold.Store) (*Sensor, error) {
	s := &Sensor{
		store:    store,
		users:    make([]string, 0),
		captured: make(chan struct{}),
	}
	if store == nil {
		return s, nil
	}

	var t templates
	if err := store.Get(templatesKey, &t); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load fingerprint templates: %w", err)
	}
	if t.Fingers != nil {
		s.users = t.Fingers
	}
	return s, nil
}

// Attach routes the touch notifications to the given handler. Captures
// preceding the call are discarded.
func (s *Sensor) Attach(h TouchHandler) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.handler = h
	s.pending = nil
}

// Touch places the given finger on the sensor.
func (s *Sensor) Touch(finger string) error {
	if finger == "" {
		return ErrInvalidFinger
	}

	s.lock.Lock()
	s.finger = finger
	s.pending = append(s.pending, finger)
	if len(s.pending) > maxPending {
		s.pending = s.pending[1:]
	}
	close(s.captured)
	s.captured = make(chan struct{})
	handler := s.handler
	s.lock.Unlock()

	if handler != nil {
		if err := handler.Touched(); err != nil {
			log.WithError(err).Debug("touch not delivered")
		}
	}
	return nil
}

// Release lifts the finger from the sensor.
func (s *Sensor) Release() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.finger = ""
}

func (s *Sensor) IsTouched() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.finger != ""
}

// Users returns the names of the enrolled fingers, indexed by user id.
func (s *Sensor) Users() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string{}, s.users...)
}

func (s *Sensor) UserCount() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.users), nil
}

// Enroll registers the finger of the next policy.Captures captures.
func (s *Sensor) Enroll(ctx context.Context, policy ports.EnrollPolicy) error {
	if count, _ := s.UserCount(); policy.MaxUsers > 0 && count >= policy.MaxUsers {
		return ports.ErrMaxUsersEnrolled
	}

	var finger string
	for i := 0; i < policy.Captures; i++ {
		captured, err := s.capture(ctx, policy.CaptureTimeout)
		if err != nil {
			return err
		}
		if finger != "" && captured != finger {
			return ErrFingerMismatch
		}
		finger = captured
		log.Debugf("enrollment capture %d/%d", i+1, policy.Captures)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for _, u := range s.users {
		if u == finger {
			return nil
		}
	}
	s.users = append(s.users, finger)
	return s.persist()
}

// Match returns the id of the enrolled user once policy.MinMatches
// captures have matched it.
func (s *Sensor) Match(ctx context.Context, policy ports.MatchPolicy) (int, error) {
	minMatches := policy.MinMatches
	if minMatches <= 0 {
		minMatches = 1
	}

	id := -1
	for i := 0; i < minMatches; i++ {
		finger, err := s.capture(ctx, policy.Timeout)
		if err != nil {
			return -1, err
		}
		matched := s.userID(finger)
		if matched < 0 || (id >= 0 && matched != id) {
			return -1, ports.ErrNoMatch
		}
		id = matched
	}
	return id, nil
}

func (s *Sensor) EraseOne(id int) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if id < 0 || id >= len(s.users) {
		return ErrUnknownUser
	}
	s.users = append(s.users[:id], s.users[id+1:]...)
	return s.persist()
}

func (s *Sensor) EraseAll() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.users = make([]string, 0)
	return s.persist()
}

// capture pops the oldest pending capture, waiting up to timeout for one.
func (s *Sensor) capture(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		s.lock.Lock()
		if len(s.pending) > 0 {
			finger := s.pending[0]
			s.pending = s.pending[1:]
			s.lock.Unlock()
			return finger, nil
		}
		captured := s.captured
		s.lock.Unlock()

		select {
		case <-captured:
		case <-expired:
			return "", ports.ErrCaptureTimeout
		case <-ctx.Done():
			return "", ports.ErrCaptureTimeout
		}
	}
}

func (s *Sensor) userID(finger string) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, u := range s.users {
		if u == finger {
			return i
		}
	}
	return -1
}

func (s *Sensor) persist() error {
	if s.store == nil {
		return nil
	}
	return s.store.Upsert(templatesKey, templates{s.users})
}
