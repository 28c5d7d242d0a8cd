// Package session drives one GATT connection to a speaker: connection and
// discovery state, the optional pin unlock, and paced, acknowledged writes.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/ratelimit"
	"github.com/srg/boks/internal/stream"
)

// State is the session lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateDiscovering
	StateReady
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const ackBuffer = 8

// epoch spans one connect attempt. ready closes at most once when the
// attempt becomes usable; lost closes when it ends for any reason.
type epoch struct {
	ready      chan struct{}
	lost       chan struct{}
	discovered bool
	isReady    bool
	isLost     bool
}

func newEpoch() *epoch {
	return &epoch{ready: make(chan struct{}), lost: make(chan struct{})}
}

func (e *epoch) markReady() {
	if !e.isReady {
		e.isReady = true
		close(e.ready)
	}
}

func (e *epoch) end() {
	if !e.isLost {
		e.isLost = true
		close(e.lost)
	}
}

// Session is a long-lived GATT connection to one speaker.
//
// Writes are serialized: at most one is in flight, each waits its turn on
// the rate limiter and then for the peer acknowledgement. Cancelling a
// caller's context releases that caller only; a write already handed to
// the link is not retracted.
type Session struct {
	key     device.Key
	id      string
	link    Link
	opts    Options
	limiter *ratelimit.Limiter
	logger  *logrus.Logger
	metrics *metrics.Collector

	connected *stream.Value[bool]
	ready     *stream.Value[bool]

	sendLock    chan struct{}
	acks        chan Event
	lastWritten map[device.CharacteristicID][]byte // guarded by sendLock

	mu    sync.Mutex
	state State
	epoch *epoch

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
}

// Open dials the address in key and starts the event loop. The session is
// returned immediately; connection and discovery continue in the background.
func Open(key device.Key, dialer Dialer, opts Options, logger *logrus.Logger, m *metrics.Collector) (*Session, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	link, err := dialer.Dial(key.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to open link to %s: %w", key.Address, err)
	}

	s := newSession(key, link, opts, logger, m)
	go s.run()

	s.logger.WithFields(logrus.Fields{
		"address": key.Address,
		"pin":     key.Pin.IsSet(),
		"session": s.id,
	}).Info("Session opened")

	return s, nil
}

func newSession(key device.Key, link Link, opts Options, logger *logrus.Logger, m *metrics.Collector) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		key:         key,
		id:          uuid.NewString(),
		link:        link,
		opts:        opts,
		limiter:     ratelimit.New(1, opts.WriteInterval),
		logger:      logger,
		metrics:     m,
		connected:   stream.NewValue(false, stream.Equal[bool]),
		ready:       stream.NewValue(false, stream.Equal[bool]),
		sendLock:    make(chan struct{}, 1),
		acks:        make(chan Event, ackBuffer),
		lastWritten: make(map[device.CharacteristicID][]byte),
		state:       StateConnecting,
		epoch:       newEpoch(),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
}

func (s *Session) Key() device.Key { return s.key }

// ID is a random correlation id used in log lines.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool { return s.connected.Get() }

func (s *Session) IsReady() bool { return s.ready.Get() }

// ConnectionStates yields the link state, current value first.
func (s *Session) ConnectionStates(ctx context.Context) <-chan bool {
	return s.connected.Subscribe(ctx)
}

// ReadyStates yields whether services are discovered and the pin is sent.
func (s *Session) ReadyStates(ctx context.Context) <-chan bool {
	return s.ready.Subscribe(ctx)
}

// AwaitReady blocks until the session is ready and returns a channel that
// closes when that ready period ends (disconnect or Close).
func (s *Session) AwaitReady(ctx context.Context) (<-chan struct{}, error) {
	for {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return nil, device.ErrClosed
		}
		e := s.epoch
		s.mu.Unlock()

		select {
		case <-e.ready:
			select {
			case <-e.lost:
				continue
			default:
				return e.lost, nil
			}
		case <-e.lost:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Send writes payload to the characteristic and waits for the peer to
// acknowledge it, retrying unacknowledged attempts.
func (s *Session) Send(ctx context.Context, id device.CharacteristicID, payload []byte) error {
	select {
	case <-s.closed:
		return device.ErrClosed
	default:
	}
	if !s.connected.Get() {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, s.key.Address)
	}
	return s.write(ctx, id, payload)
}

// Close disconnects and releases the link. Errors raised while tearing the
// link down are logged, not returned; calling Close again is a no-op.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.epoch.end()
		s.mu.Unlock()

		close(s.closed)
		s.cancel()
		<-s.loopDone

		s.connected.Set(false)
		s.ready.Set(false)
		s.connected.Close()
		s.ready.Close()

		logger := s.logger.WithFields(logrus.Fields{
			"address": s.key.Address,
			"session": s.id,
		})
		if err := s.link.Close(); err != nil {
			logger.WithError(err).Warn("Error while closing link")
		}
		logger.Info("Session closed")
	})
	return nil
}

func (s *Session) run() {
	defer close(s.loopDone)

	events := s.link.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.onConnectionState(false)
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	switch ev.Type {
	case EventConnectionState:
		s.onConnectionState(ev.Connected)
	case EventServicesDiscovered:
		s.onServicesDiscovered(ev.Err)
	case EventWriteAck:
		select {
		case s.acks <- ev:
		default:
			s.logger.WithFields(logrus.Fields{
				"address":        s.key.Address,
				"characteristic": device.CharacteristicName(ev.Characteristic),
			}).Warn("Dropping write ack, buffer full")
		}
	}
}

func (s *Session) onConnectionState(connected bool) {
	logger := s.logger.WithFields(logrus.Fields{
		"address": s.key.Address,
		"session": s.id,
	})

	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return
	case connected:
		if s.state == StateDiscovering || s.state == StateReady {
			s.mu.Unlock()
			return
		}
		s.state = StateDiscovering
		s.mu.Unlock()

		s.connected.Set(true)
		s.metrics.Connected(s.key.Address, true)
		logger.Info("Link connected, discovering services")
		if err := s.link.DiscoverServices(); err != nil {
			logger.WithError(err).Warn("Failed to start service discovery")
		}
	default:
		if s.state == StateDisconnected {
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		s.epoch.end()
		s.epoch = newEpoch()
		s.mu.Unlock()

		s.connected.Set(false)
		s.ready.Set(false)
		s.metrics.Connected(s.key.Address, false)
		logger.Warn("Link disconnected")
	}
}

func (s *Session) onServicesDiscovered(err error) {
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.key.Address,
			"session": s.id,
		}).WithError(err).Warn("Service discovery failed")
		return
	}

	s.mu.Lock()
	if s.state != StateDiscovering || s.epoch.discovered {
		s.mu.Unlock()
		return
	}
	e := s.epoch
	e.discovered = true
	s.mu.Unlock()

	go s.finishSetup(e)
}

// finishSetup sends the pin unlock, when configured, and marks the epoch
// ready. An unacknowledged unlock is logged and the session still becomes
// ready; the speaker then rejects writes until the pin is corrected.
func (s *Session) finishSetup(e *epoch) {
	logger := s.logger.WithFields(logrus.Fields{
		"address": s.key.Address,
		"session": s.id,
	})

	if s.key.Pin.IsSet() {
		if err := s.write(s.ctx, device.PinCharacteristic, device.EncodePinUnlock(s.key.Pin)); err != nil {
			logger.WithError(err).Warn("Pin unlock not acknowledged")
		}
	}

	s.mu.Lock()
	if s.epoch != e || s.state != StateDiscovering {
		s.mu.Unlock()
		return
	}
	s.state = StateReady
	e.markReady()
	s.mu.Unlock()

	s.ready.Set(true)
	logger.Info("Session ready")
}

func (s *Session) write(ctx context.Context, id device.CharacteristicID, payload []byte) error {
	select {
	case s.sendLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return device.ErrClosed
	}
	defer func() { <-s.sendLock }()

	name := device.CharacteristicName(id)
	logger := s.logger.WithFields(logrus.Fields{
		"address":        s.key.Address,
		"session":        s.id,
		"characteristic": name,
	})

	if s.opts.SkipUnchanged {
		if prev, ok := s.lastWritten[id]; ok && bytes.Equal(prev, payload) {
			logger.Debug("Skipping unchanged write")
			return nil
		}
	}

	attempts := max(1, s.opts.MaxWriteAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.metrics.Write(name, metrics.ResultCanceled)
			return err
		}

		s.drainAcks()
		s.metrics.WriteAttempt()
		err := s.link.WriteCharacteristic(id, payload)
		if err == nil {
			err = s.awaitAck(ctx, id)
		}
		if err == nil {
			if s.opts.SkipUnchanged {
				s.lastWritten[id] = bytes.Clone(payload)
			}
			logger.WithField("attempt", attempt).Debug("Write acknowledged")
			s.metrics.Write(name, metrics.ResultOK)
			return nil
		}

		var notFound *device.NotFoundError
		switch {
		case errors.As(err, &notFound):
			logger.WithError(err).Error("Characteristic missing, giving up")
			s.metrics.Write(name, metrics.ResultError)
			return err
		case ctx.Err() != nil:
			s.metrics.Write(name, metrics.ResultCanceled)
			return ctx.Err()
		case errors.Is(err, device.ErrClosed):
			return err
		}

		lastErr = err
		logger.WithError(err).WithField("attempt", attempt).Warn("Write not acknowledged")
	}

	result := metrics.ResultError
	if errors.Is(lastErr, device.ErrTimeout) {
		result = metrics.ResultTimeout
	}
	s.metrics.Write(name, result)
	return &WriteError{Characteristic: id, Attempts: attempts, Err: lastErr}
}

// drainAcks discards acknowledgements left over from abandoned writes.
func (s *Session) drainAcks() {
	for {
		select {
		case <-s.acks:
		default:
			return
		}
	}
}

func (s *Session) awaitAck(ctx context.Context, id device.CharacteristicID) error {
	timer := time.NewTimer(s.opts.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-s.acks:
			if ack.Characteristic != id {
				continue
			}
			return ack.Err
		case <-timer.C:
			return fmt.Errorf("%w: no acknowledgement within %s", device.ErrTimeout, s.opts.AckTimeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return device.ErrClosed
		}
	}
}
