// Package configsync keeps every reachable speaker in line with its stored
// config.
//
// One worker per listed speaker holds a pooled session and follows the
// speaker's stored config. Each new config cancels the apply still running
// for the previous one, so only the latest config is ever driven to the
// speaker.
package configsync

import (
	"context"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/groutine"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/prefs"
	"github.com/srg/boks/internal/session"
	"github.com/srg/boks/internal/stream"
)

// Options tunes the workers.
type Options struct {
	// ConnectTimeout bounds the wait for a session to become ready. Zero
	// waits indefinitely.
	ConnectTimeout time.Duration
	// RetryDelay separates attempts after a session is lost or fails.
	RetryDelay time.Duration `default:"1s"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// Source publishes the speakers to keep in sync. discovery.Aggregator
// implements it.
type Source interface {
	Devices(ctx context.Context) <-chan []device.Device
}

// Connector runs fn against a ready pooled session. remote.Remote implements it.
type Connector interface {
	Use(ctx context.Context, key device.Key, connectTimeout time.Duration, fn func(ctx context.Context, s *session.Session) error) error
}

// Synchronizer runs one worker per listed speaker.
type Synchronizer struct {
	source  Source
	remote  Connector
	store   prefs.Store
	opts    Options
	logger  *logrus.Logger
	metrics *metrics.Collector
}

func New(source Source, remote Connector, store prefs.Store, opts Options, logger *logrus.Logger, m *metrics.Collector) *Synchronizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Synchronizer{
		source:  source,
		remote:  remote,
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *worker) stop() {
	w.cancel()
	<-w.done
}

// Run follows the source until ctx is done. Workers for speakers that leave
// the list are stopped; a failing worker never affects the others.
func (s *Synchronizer) Run(ctx context.Context) error {
	workers := make(map[string]*worker)
	defer func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w *worker) {
				defer wg.Done()
				w.stop()
			}(w)
		}
		wg.Wait()
	}()

	for list := range s.source.Devices(ctx) {
		wanted := make(map[string]device.Device, len(list))
		for _, d := range list {
			wanted[d.Address] = d
		}

		for address, w := range workers {
			if _, ok := wanted[address]; !ok {
				s.logger.WithField("address", address).Debug("Stop sync worker")
				w.stop()
				delete(workers, address)
			}
		}
		for address, d := range wanted {
			if _, ok := workers[address]; ok {
				continue
			}
			d := d
			wctx, cancel := context.WithCancel(ctx)
			w := &worker{cancel: cancel, done: make(chan struct{})}
			workers[address] = w

			groutine.Go(wctx, "sync-"+address, func(ctx context.Context) {
				defer close(w.done)
				s.runWorker(ctx, d)
			})
		}
	}
	return ctx.Err()
}

// runWorker keeps a session to d and follows its config. The applied-value
// cache survives reconnects of the same session, except for the pin unlock
// which every connection needs again; a new session starts from an empty
// cache.
func (s *Synchronizer) runWorker(ctx context.Context, d device.Device) {
	logger := s.logger.WithField("device", d.DebugName())
	applier := NewApplier(d, s.logger, s.metrics)
	var last *session.Session

	logger.Info("Sync worker started")
	defer logger.Info("Sync worker stopped")

	for ctx.Err() == nil {
		err := s.remote.Use(ctx, device.Key{Address: d.Address}, s.opts.ConnectTimeout, func(ctx context.Context, sess *session.Session) error {
			if sess != last {
				applier.Reset()
				last = sess
			}
			// Use is entered once per ready period.
			applier.Relock()
			return s.follow(ctx, applier, sess, d.Address)
		})
		if ctx.Err() != nil {
			return
		}
		_, cached := applier.Cache().Known()
		logger.WithError(err).WithField("cached", cached).Debug("Session ended, retrying")

		t := time.NewTimer(s.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// follow applies every distinct stored config for address, latest wins.
func (s *Synchronizer) follow(ctx context.Context, applier *Applier, sender Sender, address string) error {
	var (
		cancelApply context.CancelFunc
		applyDone   chan struct{}
	)
	stopApply := func() {
		if cancelApply != nil {
			cancelApply()
			<-applyDone
			cancelApply = nil
		}
	}
	defer stopApply()

	for cfg := range Configs(ctx, s.store, address) {
		stopApply()

		actx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		cancelApply, applyDone = cancel, done

		go func(cfg device.Config) {
			defer close(done)
			if err := applier.Apply(actx, sender, cfg); err != nil && actx.Err() == nil {
				s.logger.WithField("address", address).WithError(err).Warn("Config only partly applied")
			}
		}(cfg)
	}
	return ctx.Err()
}

// Configs yields the stored config of address, default when absent, and
// every distinct change. A slow reader only sees the latest config.
func Configs(ctx context.Context, store prefs.Store, address string) <-chan device.Config {
	data := store.Data(ctx)
	first := <-data

	value := stream.NewValue(first.ConfigFor(address), stream.Equal[device.Config])
	go func() {
		defer value.Close()
		for p := range data {
			value.Set(p.ConfigFor(address))
		}
	}()
	return value.Subscribe(ctx)
}
