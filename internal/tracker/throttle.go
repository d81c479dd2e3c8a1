package tracker

import "time"

// RateLimiter records at most one sample per window. The first signal of an
// idle window arms a timer; signals until it fires are dropped, and the
// capture reads whatever state is current at window close.
//
// A RateLimiter is not safe for concurrent use. exec must run its argument
// under the same serialization as Signal.
type RateLimiter struct {
	clock   Clock
	window  time.Duration
	capture func()
	exec    func(func())
	timer   Timer
}

func NewRateLimiter(clock Clock, window time.Duration, exec func(func()), capture func()) *RateLimiter {
	return &RateLimiter{
		clock:   clock,
		window:  window,
		capture: capture,
		exec:    exec,
	}
}

func (r *RateLimiter) Signal() {
	if r.timer != nil {
		return
	}
	var t Timer
	t = r.clock.AfterFunc(r.window, func() {
		r.exec(func() {
			// Stop may have cancelled this window after the timer fired.
			if r.timer != t {
				return
			}
			r.timer = nil
			r.capture()
		})
	})
	r.timer = t
}

// Pending reports whether a window is open.
func (r *RateLimiter) Pending() bool {
	return r.timer != nil
}

// Stop discards an open window; its sample is never captured.
func (r *RateLimiter) Stop() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
