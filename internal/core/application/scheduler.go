package application

import (
	"fmt"
	"sync"
)

// TaskKind is the closed set of events and deferred actions handled by the
// device loop.
type TaskKind uint8

const (
	TaskFieldOn TaskKind = iota
	TaskFieldOff
	TaskWritten
	TaskPayloadRead
	TaskTouched
	// TaskEnroll runs the fingerprint enrollment requested by a Lock command.
	TaskEnroll
	// TaskConfirmReset waits for the sustained touch that confirms a Reset.
	TaskConfirmReset
)

var taskNames = map[TaskKind]string{
	TaskFieldOn:      "field_on",
	TaskFieldOff:     "field_off",
	TaskWritten:      "written",
	TaskPayloadRead:  "payload_read",
	TaskTouched:      "touched",
	TaskEnroll:       "enroll",
	TaskConfirmReset: "confirm_reset",
}

func (k TaskKind) String() string {
	if name, ok := taskNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

type task struct {
	kind TaskKind
	data []byte
}

// scheduler is a bounded FIFO of tasks. Posting never blocks and never drops
// a task: a full queue trips the fault instead.
type scheduler struct {
	tasks   chan task
	faulted chan struct{}
	once    sync.Once
}

func newScheduler(capacity int) *scheduler {
	return &scheduler{
		tasks:   make(chan task, capacity),
		faulted: make(chan struct{}),
	}
}

func (s *scheduler) post(t task) error {
	select {
	case <-s.faulted:
		return ErrTaskQueueFull
	default:
	}

	select {
	case s.tasks <- t:
		return nil
	default:
		s.trip()
		return ErrTaskQueueFull
	}
}

func (s *scheduler) trip() {
	s.once.Do(func() { close(s.faulted) })
}

func (s *scheduler) isFaulted() bool {
	select {
	case <-s.faulted:
		return true
	default:
		return false
	}
}

func (s *scheduler) fault() <-chan struct{} {
	return s.faulted
}

func (s *scheduler) next() <-chan task {
	return s.tasks
}

func (s *scheduler) pending() int {
	return len(s.tasks)
}
