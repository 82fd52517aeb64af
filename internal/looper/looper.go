// Package looper runs posted functions one at a time on a dedicated
// goroutine. It stands in for the platform UI thread: native callbacks that
// must resume on the main thread are posted here, in order.
package looper

import (
	"log/slog"
	"sync"
)

// Poster schedules fn on the main thread.
type Poster interface {
	Post(fn func())
}

// Looper is a FIFO of functions drained by a single goroutine.
type Looper struct {
	log *slog.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
	stopped chan struct{}
}

// New starts a Looper. Call Close to stop it.
func New(logger *slog.Logger) *Looper {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Looper{
		log:     logger.With("component", "looper"),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post appends fn. Functions posted after Close are dropped.
func (l *Looper) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Warn("post after close dropped")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close drains what is already queued and stops the goroutine.
func (l *Looper) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	<-l.stopped
}

func (l *Looper) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Looper) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.call(fn)
	}
}

func (l *Looper) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("posted function panicked", "panic", r)
		}
	}()
	fn()
}

// Inline runs posted functions on the caller's goroutine. Tests and hosts
// that already marshal to their own main thread use it.
type Inline struct{}

// Post calls fn immediately.
func (Inline) Post(fn func()) { fn() }
