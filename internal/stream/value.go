// Package stream provides latest-wins observable values built on
// overwrite-oldest ring channels.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait when the Value closes first.
var ErrClosed = errors.New("stream: value closed")

// Value is an observable cell. Subscribers see the current value first and
// then every later change, conflated so a slow subscriber only ever misses
// intermediate values, never the latest one.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	subs   map[*RingChannel[T]]struct{}
	equal  func(a, b T) bool
	closed bool
	done   chan struct{}
}

// NewValue creates a Value. When equal is non-nil, Set ignores values equal
// to the current one so subscribers only observe distinct changes.
func NewValue[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		cur:   initial,
		subs:  make(map[*RingChannel[T]]struct{}),
		equal: equal,
		done:  make(chan struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set replaces the current value and reports whether subscribers were notified.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	if v.equal != nil && v.equal(v.cur, x) {
		return false
	}
	v.cur = x
	for rc := range v.subs {
		rc.Send(x)
	}
	return true
}

// Update applies fn to the current value atomically and publishes the result.
func (v *Value[T]) Update(fn func(T) T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	x := fn(v.cur)
	if v.equal != nil && v.equal(v.cur, x) {
		return false
	}
	v.cur = x
	for rc := range v.subs {
		rc.Send(x)
	}
	return true
}

// Subscribe returns a channel that yields the current value immediately and
// then each change. The channel closes when ctx is done or the Value is closed.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	rc := NewRingChannel[T](1)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		rc.Close()
		return rc.C()
	}
	rc.Send(v.cur)
	v.subs[rc] = struct{}{}
	v.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-v.done:
			return
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[rc]; ok {
			delete(v.subs, rc)
			rc.Close()
		}
	}()

	return rc.C()
}

// Wait blocks until pred holds for the current value.
func (v *Value[T]) Wait(ctx context.Context, pred func(T) bool) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for x := range v.Subscribe(ctx) {
		if pred(x) {
			return x, nil
		}
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrClosed
}

// Close completes every subscription. Later Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.done)
	for rc := range v.subs {
		delete(v.subs, rc)
		rc.Close()
	}
}

// Equal is an equality func for comparable types.
func Equal[T comparable](a, b T) bool { return a == b }
