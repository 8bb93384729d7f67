package capability

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the timer and reports whether it was still pending.
	Stop() bool
}

// Timers schedules callbacks. The engine supplies an implementation that
// runs callbacks on its loop goroutine.
type Timers interface {
	SetTimeout(fn func(), d time.Duration) Timer
	SetInterval(fn func(), d time.Duration) Timer
	SetImmediate(fn func()) Timer
}

// Post schedules fn to run on some goroutine as soon as possible.
type Post func(fn func())

// PostTimers implements Timers on top of a Post function, so every callback
// is delivered through post.
type PostTimers struct {
	post Post
}

// NewPostTimers returns Timers delivering callbacks through post. A nil post
// runs callbacks on the timer goroutine.
func NewPostTimers(post Post) *PostTimers {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &PostTimers{post: post}
}

type postTimer struct {
	mu      sync.Mutex
	stopped bool
	timer   *time.Timer
}

func (t *postTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

func (t *postTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// SetTimeout runs fn once after d.
func (p *PostTimers) SetTimeout(fn func(), d time.Duration) Timer {
	t := &postTimer{}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() {
		p.post(func() {
			if t.Stop() {
				fn()
			}
		})
	})
	t.mu.Unlock()
	return t
}

// SetInterval runs fn every d until stopped.
func (p *PostTimers) SetInterval(fn func(), d time.Duration) Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	t := &postTimer{}
	var arm func()
	arm = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped {
			return
		}
		t.timer = time.AfterFunc(d, func() {
			p.post(func() {
				if !t.live() {
					return
				}
				fn()
				arm()
			})
		})
	}
	arm()
	return t
}

// SetImmediate runs fn through post without delay.
func (p *PostTimers) SetImmediate(fn func()) Timer {
	t := &postTimer{}
	p.post(func() {
		if t.Stop() {
			fn()
		}
	})
	return t
}
