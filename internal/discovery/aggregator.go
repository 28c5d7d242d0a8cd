// Package discovery maintains the list of reachable speakers.
//
// Candidates come from the platform's connected devices, from devices
// remembered by earlier cycles and from live scan results. Each candidate is
// probed through a pooled session and listed only while that session is
// ready. Bonded speakers with a live platform link are listed without a probe.
package discovery

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/groutine"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/platform"
	"github.com/srg/boks/internal/session"
	"github.com/srg/boks/internal/stream"
)

// Options tunes probing.
type Options struct {
	// ProbeTimeout bounds the wait for a probed device to become ready. A
	// device that misses it is forgotten by the known cache.
	ProbeTimeout time.Duration `default:"30s"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// Connector runs fn against a ready pooled session. remote.Remote implements it.
type Connector interface {
	Use(ctx context.Context, key device.Key, connectTimeout time.Duration, fn func(ctx context.Context, s *session.Session) error) error
}

// Aggregator publishes the deduplicated, name-sorted list of reachable speakers.
type Aggregator struct {
	platform platform.Platform
	remote   Connector
	known    *KnownCache
	opts     Options
	logger   *logrus.Logger
	metrics  *metrics.Collector

	devices *stream.Value[[]device.Device]
	playing *stream.Value[*device.Device]
}

// New creates an Aggregator. known may be shared between aggregators; nil
// creates a private unbounded cache.
func New(p platform.Platform, remote Connector, known *KnownCache, opts Options, logger *logrus.Logger, m *metrics.Collector) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if known == nil {
		known = NewKnownCache(0)
	}
	return &Aggregator{
		platform: p,
		remote:   remote,
		known:    known,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		devices:  stream.NewValue[[]device.Device](nil, slices.Equal[[]device.Device, device.Device]),
		playing:  stream.NewValue[*device.Device](nil, samePlaying),
	}
}

// Devices yields the current list and every distinct change.
func (a *Aggregator) Devices(ctx context.Context) <-chan []device.Device {
	return a.devices.Subscribe(ctx)
}

// Current returns the current list.
func (a *Aggregator) Current() []device.Device { return a.devices.Get() }

// Playing yields the speaker receiving the audio stream, or nil.
func (a *Aggregator) Playing(ctx context.Context) <-chan *device.Device {
	return a.playing.Subscribe(ctx)
}

// Run drives discovery until ctx is done. While permission is withheld the
// published list is empty.
func (a *Aggregator) Run(ctx context.Context) error {
	var current *groutine.Group
	stop := func() {
		if current != nil {
			current.Stop()
			current = nil
		}
		a.devices.Set(nil)
		a.playing.Set(nil)
		a.metrics.Visible(0)
	}
	defer stop()

	for granted := range a.platform.Permissions(ctx) {
		stop()
		if !granted {
			a.logger.Info("Bluetooth unavailable, device list cleared")
			continue
		}

		a.logger.Info("Starting device discovery")
		current = groutine.NewGroup(ctx)
		c := newCycle(a, current)
		current.Go("discovery-cycle", c.run)
	}
	return ctx.Err()
}

// cycle is one permission-granted discovery period.
type cycle struct {
	a     *Aggregator
	group *groutine.Group

	mu        sync.Mutex
	confirmed *orderedmap.OrderedMap[string, device.Device]
	bonded    []device.Device
	probing   map[string]bool
}

func newCycle(a *Aggregator, g *groutine.Group) *cycle {
	return &cycle{
		a:         a,
		group:     g,
		confirmed: orderedmap.New[string, device.Device](),
		probing:   make(map[string]bool),
	}
}

func (c *cycle) run(ctx context.Context) {
	c.publish()

	connected, err := c.a.platform.ConnectedDevices(ctx)
	if err != nil {
		c.a.logger.WithError(err).Warn("Failed to list connected devices")
	}
	for _, d := range device.Recognize(connected) {
		c.handle(d)
	}
	for _, d := range c.a.known.Devices() {
		c.handle(d)
	}

	c.group.Go("discovery-scan", c.scan)
	c.group.Go("discovery-bonded", c.watchBonded)
	<-ctx.Done()
}

func (c *cycle) scan(ctx context.Context) {
	c.a.logger.Debug("Start scan")
	err := c.a.platform.Scan(ctx, func(p device.Peer) {
		if p.IsSoundboks() {
			c.handle(p.Device())
		}
	})
	if err != nil && ctx.Err() == nil {
		c.a.logger.WithError(err).Error("Scan failed")
		return
	}
	c.a.logger.Debug("Stop scan")
}

// handle starts a probe for d unless one is already running.
func (c *cycle) handle(d device.Device) {
	if !c.a.known.Contains(d.Address) {
		c.a.logger.WithField("device", d.DebugName()).Debug("Remember new device")
	}
	c.a.known.Remember(d)
	c.a.metrics.Known(c.a.known.Len())

	c.mu.Lock()
	if c.probing[d.Address] {
		c.mu.Unlock()
		return
	}
	c.probing[d.Address] = true
	c.mu.Unlock()

	c.group.Go("probe-"+d.Address, func(ctx context.Context) { c.probe(ctx, d) })
}

// probe holds a session to d for as long as the cycle runs, listing d while
// the session is ready. A dropped link delists d and probes again.
func (c *cycle) probe(ctx context.Context, d device.Device) {
	logger := c.a.logger.WithField("device", d.DebugName())
	defer func() {
		c.mu.Lock()
		delete(c.probing, d.Address)
		c.mu.Unlock()
	}()

	for ctx.Err() == nil {
		logger.Debug("Attempt to connect")
		err := c.a.remote.Use(ctx, device.Key{Address: d.Address}, c.a.opts.ProbeTimeout, func(ctx context.Context, s *session.Session) error {
			c.a.metrics.Probe(metrics.ResultOK)
			logger.Info("Add device")
			c.confirm(d)
			<-ctx.Done()
			c.remove(d.Address)
			return ctx.Err()
		})

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, device.ErrConnectionLost):
			logger.Info("Remove device")
			continue
		case errors.Is(err, device.ErrTimeout):
			logger.WithField("timeout", c.a.opts.ProbeTimeout).Info("Device unreachable, forgetting it")
			c.a.metrics.Probe(metrics.ResultTimeout)
			c.a.known.Forget(d.Address)
			c.a.metrics.Known(c.a.known.Len())
		default:
			logger.WithError(err).Warn("Probe failed")
			c.a.metrics.Probe(metrics.ResultError)
		}
		return
	}
}

func (c *cycle) confirm(d device.Device) {
	c.mu.Lock()
	c.confirmed.Set(d.Address, d)
	c.mu.Unlock()
	c.publish()
}

func (c *cycle) remove(address string) {
	c.mu.Lock()
	c.confirmed.Delete(address)
	c.mu.Unlock()
	if c.group.Context().Err() == nil {
		c.publish()
	}
}

// watchBonded tracks bonded speakers with a live link and the playing
// speaker, refreshed on every platform broadcast.
func (c *cycle) watchBonded(ctx context.Context) {
	ticks, err := c.a.platform.Broadcasts(ctx)
	if err != nil {
		c.a.logger.WithError(err).Warn("Platform broadcasts unavailable")
		c.refreshBonded(ctx)
		return
	}

	c.refreshBonded(ctx)
	for range ticks {
		c.refreshBonded(ctx)
	}
}

func (c *cycle) refreshBonded(ctx context.Context) {
	peers, err := c.a.platform.BondedDevices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.a.logger.WithError(err).Warn("Failed to list bonded devices")
		}
		return
	}

	var linked []device.Device
	for _, d := range device.Recognize(peers) {
		ok, err := c.a.platform.IsConnected(ctx, d.Address)
		if err != nil {
			c.a.logger.WithField("device", d.DebugName()).WithError(err).Debug("Link state unknown")
			continue
		}
		if ok {
			linked = append(linked, d)
		}
	}

	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.bonded = linked
	c.mu.Unlock()
	c.publish()

	c.refreshPlaying(ctx)
}

func (c *cycle) refreshPlaying(ctx context.Context) {
	p, ok, err := c.a.platform.ActiveAudioDevice(ctx)
	if err != nil {
		c.a.logger.WithError(err).Debug("Active audio device unknown")
		return
	}
	if !ok || !p.IsSoundboks() {
		c.a.playing.Set(nil)
		return
	}
	d := p.Device()
	c.a.playing.Set(&d)
}

// publish merges confirmed and linked bonded devices, dedupes by address
// and sorts by name. The list is published under c.mu so concurrent
// publishes land in the order their snapshots were taken.
func (c *cycle) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var out []device.Device
	for pair := c.confirmed.Oldest(); pair != nil; pair = pair.Next() {
		seen[pair.Key] = true
		out = append(out, pair.Value)
	}
	for _, d := range c.bonded {
		if !seen[d.Address] {
			seen[d.Address] = true
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Address < out[j].Address
	})

	if c.a.devices.Set(out) {
		c.a.logger.WithField("count", len(out)).Debug("Device list changed")
	}
	c.a.metrics.Visible(len(out))
}

func samePlaying(a, b *device.Device) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
