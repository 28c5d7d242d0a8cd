// Package remote is the entry point for talking to a speaker: it hands out
// ready, pooled sessions and runs caller blocks against them.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/platform"
	"github.com/srg/boks/internal/pool"
	"github.com/srg/boks/internal/session"
)

// Options groups pool and session tuning.
type Options struct {
	Pool    pool.Options
	Session session.Options
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	return Options{Pool: pool.DefaultOptions(), Session: session.DefaultOptions()}
}

// Remote shares one session per (address, pin) between all callers.
type Remote struct {
	pool    *pool.Pool[device.Key, *session.Session]
	devices platform.Devices
	logger  *logrus.Logger
}

// New creates a Remote. devices may be nil when IsConnected is not needed.
func New(dialer session.Dialer, devices platform.Devices, opts Options, logger *logrus.Logger, m *metrics.Collector) *Remote {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	create := func(key device.Key) (*session.Session, error) {
		s, err := session.Open(key, dialer, opts.Session, logger, m)
		if err != nil {
			return nil, err
		}
		m.SessionOpened()
		return s, nil
	}
	release := func(key device.Key, s *session.Session) error {
		m.SessionClosed(key.Address)
		return s.Close()
	}

	p := pool.New(create, release, opts.Pool, logger)
	p.OnRefs = func(key device.Key, refs int) { m.SessionRefs(key.Address, refs) }

	return &Remote{pool: p, devices: devices, logger: logger}
}

// Use runs fn against a ready session for key.
//
// It waits up to connectTimeout for the session to become ready (zero waits
// indefinitely) and fails with device.ErrTimeout when it does not. While fn
// runs, a disconnect cancels fn's context and Use returns
// device.ErrConnectionLost.
func (r *Remote) Use(ctx context.Context, key device.Key, connectTimeout time.Duration, fn func(ctx context.Context, s *session.Session) error) error {
	return r.pool.Use(ctx, key, func(ctx context.Context, s *session.Session) error {
		logger := r.logger.WithFields(logrus.Fields{
			"address": key.Address,
			"session": s.ID(),
		})

		waitCtx, cancel := ctx, context.CancelFunc(func() {})
		if connectTimeout > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		}
		lost, err := s.AwaitReady(waitCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				logger.WithField("timeout", connectTimeout).Debug("Session not ready in time")
				return fmt.Errorf("%w: %s not ready within %s", device.ErrTimeout, key.Address, connectTimeout)
			}
			return err
		}

		blockCtx, stop := context.WithCancelCause(ctx)
		defer stop(nil)
		go func() {
			select {
			case <-lost:
				stop(device.ErrConnectionLost)
			case <-blockCtx.Done():
			}
		}()

		err = fn(blockCtx, s)
		if err != nil && ctx.Err() == nil && errors.Is(context.Cause(blockCtx), device.ErrConnectionLost) {
			logger.WithError(err).Warn("Connection lost while in use")
			return fmt.Errorf("%w: %s", device.ErrConnectionLost, key.Address)
		}
		return err
	})
}

// With is Use for blocks that produce a result.
func With[R any](ctx context.Context, r *Remote, key device.Key, connectTimeout time.Duration, fn func(ctx context.Context, s *session.Session) (R, error)) (R, error) {
	var result R
	err := r.Use(ctx, key, connectTimeout, func(ctx context.Context, s *session.Session) error {
		var err error
		result, err = fn(ctx, s)
		return err
	})
	return result, err
}

// PowerOff switches the speaker off.
func (r *Remote) PowerOff(ctx context.Context, key device.Key, connectTimeout time.Duration) error {
	return r.Use(ctx, key, connectTimeout, func(ctx context.Context, s *session.Session) error {
		return s.Send(ctx, device.PowerOffCharacteristic, device.PowerOffPayload)
	})
}

// IsConnected yields the platform link state for address whenever it
// changes, current value first. The channel closes when ctx is done.
func (r *Remote) IsConnected(ctx context.Context, address string) (<-chan bool, error) {
	if r.devices == nil {
		return nil, fmt.Errorf("%w: no platform device source", device.ErrUnsupported)
	}
	ticks, err := r.devices.Broadcasts(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan bool)
	go func() {
		defer close(out)

		var last, known bool
		check := func() bool {
			connected, err := r.devices.IsConnected(ctx, address)
			if err != nil {
				r.logger.WithField("address", address).WithError(err).Debug("Connection state query failed")
				return ctx.Err() == nil
			}
			if known && connected == last {
				return true
			}
			known, last = true, connected
			select {
			case out <- connected:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !check() {
			return
		}
		for range ticks {
			if !check() {
				return
			}
		}
	}()
	return out, nil
}

// Sessions returns the number of pooled sessions, including those in grace.
func (r *Remote) Sessions() int { return r.pool.Len() }

// Refs returns the holder count for key.
func (r *Remote) Refs(key device.Key) int { return r.pool.Refs(key) }

// Close tears every session down.
func (r *Remote) Close() { r.pool.Close() }
