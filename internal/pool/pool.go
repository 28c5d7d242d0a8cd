// Package pool shares expensive resources between concurrent holders by key.
//
// The first Acquire for a key creates the resource; later Acquires reuse it.
// When the last holder releases, the resource lingers for a grace period so
// a quick re-acquire does not pay for teardown and creation again.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Options tunes resource retention.
type Options struct {
	// GracePeriod keeps an unreferenced resource alive this long. Zero
	// releases it as soon as the last holder lets go.
	GracePeriod time.Duration `default:"5s"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

type entry[V any] struct {
	value V
	refs  int
	timer *time.Timer
	gen   int
}

// Pool is a keyed, reference-counted resource cache.
//
// At most one resource exists per key at any instant: a key whose previous
// resource is still being released waits for that release to finish before
// a new one is created.
type Pool[K comparable, V any] struct {
	create  func(key K) (V, error)
	release func(key K, value V) error
	opts    Options
	logger  *logrus.Logger

	// OnRefs is called with the new count after every change, under the pool lock.
	OnRefs func(key K, refs int)

	mu      sync.Mutex
	entries map[K]*entry[V]
	closing map[K]chan struct{}
	closed  bool
}

// New creates a pool. create builds the resource for a key; release tears
// it down, and its errors are logged rather than returned.
func New[K comparable, V any](create func(key K) (V, error), release func(key K, value V) error, opts Options, logger *logrus.Logger) *Pool[K, V] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool[K, V]{
		create:  create,
		release: release,
		opts:    opts,
		logger:  logger,
		entries: make(map[K]*entry[V]),
		closing: make(map[K]chan struct{}),
	}
}

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool closed")

// Acquire returns the resource for key, creating it when absent, and a
// release func. The release func is idempotent.
func (p *Pool[K, V]) Acquire(ctx context.Context, key K) (V, func(), error) {
	var zero V

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return zero, nil, ErrPoolClosed
		}
		done, ok := p.closing[key]
		if !ok {
			break
		}
		select {
		case <-done:
			delete(p.closing, key)
			continue
		default:
		}
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return zero, nil, ctx.Err()
		}
		p.mu.Lock()
	}

	e, ok := p.entries[key]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
			p.logger.WithField("key", key).Debug("Reusing resource within grace period")
		}
	} else {
		value, err := p.create(key)
		if err != nil {
			p.mu.Unlock()
			return zero, nil, err
		}
		e = &entry[V]{value: value}
		p.entries[key] = e
		p.logger.WithField("key", key).Debug("Created resource")
	}
	e.refs++
	p.notify(key, e.refs)
	p.mu.Unlock()

	var once sync.Once
	return e.value, func() { once.Do(func() { p.unref(key, e) }) }, nil
}

// Use acquires key, runs fn with the resource and releases it when fn returns.
func (p *Pool[K, V]) Use(ctx context.Context, key K, fn func(ctx context.Context, value V) error) error {
	value, release, err := p.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, value)
}

// With is Use for functions that produce a result.
func With[R any, K comparable, V any](ctx context.Context, p *Pool[K, V], key K, fn func(ctx context.Context, value V) (R, error)) (R, error) {
	var result R
	err := p.Use(ctx, key, func(ctx context.Context, value V) error {
		var err error
		result, err = fn(ctx, value)
		return err
	})
	return result, err
}

// Refs returns the current holder count for key.
func (p *Pool[K, V]) Refs(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live resources, including those in grace.
func (p *Pool[K, V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close releases every resource regardless of holders. Later Acquires fail.
func (p *Pool[K, V]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	entries := p.entries
	p.entries = make(map[K]*entry[V])
	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	p.mu.Unlock()

	for key, e := range entries {
		p.destroy(key, e.value)
	}
}

func (p *Pool[K, V]) unref(key K, e *entry[V]) {
	p.mu.Lock()
	if p.entries[key] != e {
		p.mu.Unlock()
		return
	}

	e.refs--
	p.notify(key, e.refs)
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}

	if p.opts.GracePeriod <= 0 {
		done := p.detach(key)
		p.mu.Unlock()
		p.destroy(key, e.value)
		p.finish(key, done)
		return
	}

	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(p.opts.GracePeriod, func() { p.expire(key, e, gen) })
	p.mu.Unlock()
}

func (p *Pool[K, V]) expire(key K, e *entry[V], gen int) {
	p.mu.Lock()
	if p.entries[key] != e || e.refs > 0 || e.gen != gen || e.timer == nil {
		p.mu.Unlock()
		return
	}
	e.timer = nil
	done := p.detach(key)
	p.mu.Unlock()

	p.logger.WithField("key", key).Debug("Grace period elapsed")
	p.destroy(key, e.value)
	p.finish(key, done)
}

// detach removes key and marks it closing. Caller holds p.mu and must call
// finish once the resource is released.
func (p *Pool[K, V]) detach(key K) chan struct{} {
	delete(p.entries, key)
	done := make(chan struct{})
	p.closing[key] = done
	return done
}

func (p *Pool[K, V]) finish(key K, done chan struct{}) {
	close(done)
	p.mu.Lock()
	if p.closing[key] == done {
		delete(p.closing, key)
	}
	p.mu.Unlock()
}

func (p *Pool[K, V]) destroy(key K, value V) {
	if p.release == nil {
		return
	}
	if err := p.release(key, value); err != nil {
		p.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("Failed to release resource")
	}
}

func (p *Pool[K, V]) notify(key K, refs int) {
	if p.OnRefs != nil {
		p.OnRefs(key, refs)
	}
}
