package application

import "time"

// watchdog fires once the device has been idle for the given timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
}

func newWatchdog(timeout time.Duration) *watchdog {
	return &watchdog{timeout, time.NewTimer(timeout)}
}

func (w *watchdog) C() <-chan time.Time {
	return w.timer.C
}

func (w *watchdog) reset() {
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.timeout)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}
