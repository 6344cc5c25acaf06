package scheduler

import (
	"sync"
	"time"
)

// debouncer collapses bursts of Trigger calls to one fn invocation per
// window. The first call arms the timer; further calls within the window
// are dropped.
type debouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	armed bool
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{window: window, fn: fn}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	if d.armed {
		d.mu.Unlock()
		return
	}
	d.armed = true
	d.mu.Unlock()

	time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.armed = false
		d.mu.Unlock()
		d.fn()
	})
}
