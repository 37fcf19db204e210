package main

import (
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// ringChannel queues events between controller callbacks and a single
// consumer. Producers never block: when the ring is full the oldest element
// is overwritten. Sends after Close are ignored, so producers racing with
// shutdown are safe.
//
//	rc := newRingChannel[string](64)
//	go rc.Drain(func(s string) { fmt.Println(s) })
//	rc.Send("a")
//	rc.Close() // Drain returns after delivering "a"
type ringChannel[T any] struct {
	buf  mpmc.RichOverlappedRingBuffer[T]
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

func newRingChannel[T any](capacity uint32) *ringChannel[T] {
	if capacity == 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &ringChannel[T]{
		buf:  mpmc.NewOverlappedRingBuffer[T](capacity),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Send queues v. It reports whether older elements were overwritten.
func (rc *ringChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}

	overwrites, err := rc.buf.EnqueueM(v)
	if err != nil {
		rc.dropped.Add(1)
		return true
	}
	rc.dropped.Add(int64(overwrites))

	select {
	case rc.wake <- struct{}{}:
	default:
	}
	return overwrites > 0
}

// Drain hands every queued element to fn in order until Close, then
// delivers what is left and returns. Only one goroutine may drain.
func (rc *ringChannel[T]) Drain(fn func(T)) {
	for {
		rc.flush(fn)
		select {
		case <-rc.wake:
		case <-rc.done:
			rc.flush(fn)
			return
		}
	}
}

func (rc *ringChannel[T]) flush(fn func(T)) {
	for !rc.buf.IsEmpty() {
		v, err := rc.buf.Dequeue()
		if err != nil {
			return
		}
		fn(v)
	}
}

// Dropped returns how many elements were lost to overwrites
func (rc *ringChannel[T]) Dropped() int64 {
	return rc.dropped.Load()
}

// Close stops accepting elements; queued elements are still drained
func (rc *ringChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.done)
	}
}
