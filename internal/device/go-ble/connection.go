package goble

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/groutine"
	"github.com/srg/boks/internal/session"
)

// DefaultEventBuffer is the buffer size of a link's event channel
const DefaultEventBuffer = 64

// gattClient is the part of ble.Client a link needs.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

type dialFunc func(ctx context.Context, address string) (gattClient, error)

// connection is a session.Link over go-ble. go-ble has no auto-connect, so
// the connection redials on its own after every drop until closed.
type connection struct {
	address string
	dial    dialFunc
	opts    Options
	logger  *logrus.Logger
	events  chan session.Event

	mu      sync.Mutex
	client  gattClient
	profile *ble.Profile

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(address string, dial dialFunc, opts Options, logger *logrus.Logger) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		address: address,
		dial:    dial,
		opts:    opts,
		logger:  logger,
		events:  make(chan session.Event, DefaultEventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *connection) Events() <-chan session.Event { return c.events }

func (c *connection) run(ctx context.Context) {
	logger := c.logger.WithField("address", c.address)

	for {
		client, err := c.dialOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Debug("Dial failed, retrying")
			if !sleep(ctx, c.opts.RedialDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.client = client
		c.profile = nil
		c.mu.Unlock()

		logger.Info("BLE device connected")
		c.emit(ctx, session.Event{Type: session.EventConnectionState, Connected: true})

		// Monitor go-ble client Disconnected() channel
		var disconnected <-chan struct{}
		if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
			disconnected = dc.Disconnected()
		} else {
			logger.Debug("Client does not support Disconnected() channel")
		}

		select {
		case <-disconnected:
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		if c.client == client {
			c.client = nil
			c.profile = nil
		}
		c.mu.Unlock()

		logger.Warn("BLE device disconnected")
		c.emit(ctx, session.Event{Type: session.EventConnectionState, Connected: false})

		if !sleep(ctx, c.opts.RedialDelay) {
			return
		}
	}
}

func (c *connection) dialOnce(ctx context.Context) (gattClient, error) {
	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	c.logger.WithField("address", c.address).Debug("Dialing BLE device...")
	client, err := c.dial(dialCtx, c.address)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}

func (c *connection) DiscoverServices() error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return device.ErrNotConnected
	}

	groutine.Go(c.ctx, "gatt-discover", func(ctx context.Context) {
		logger := c.logger.WithField("address", c.address)

		profile, err := client.DiscoverProfile(true)
		if err != nil {
			err = NormalizeError(err)
			logger.WithError(err).Error("Failed to discover profile")
			// Drop the link so the redial loop starts over.
			if cancelErr := client.CancelConnection(); cancelErr != nil {
				logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
			}
			c.emit(ctx, session.Event{Type: session.EventServicesDiscovered, Err: err})
			return
		}

		c.mu.Lock()
		current := c.client == client
		if current {
			c.profile = profile
		}
		c.mu.Unlock()
		if !current {
			return
		}

		logger.WithField("services", len(profile.Services)).Debug("Profile discovered successfully")
		c.emit(ctx, session.Event{Type: session.EventServicesDiscovered})
	})
	return nil
}

func (c *connection) WriteCharacteristic(id device.CharacteristicID, payload []byte) error {
	c.mu.Lock()
	client, profile := c.client, c.profile
	c.mu.Unlock()

	if client == nil {
		return device.ErrNotConnected
	}
	if profile == nil {
		return fmt.Errorf("%w: services not discovered", device.ErrNotConnected)
	}

	char, err := findCharacteristic(profile, id)
	if err != nil {
		return err
	}

	data := bytes.Clone(payload)
	groutine.Go(c.ctx, "gatt-write", func(ctx context.Context) {
		err := NormalizeError(client.WriteCharacteristic(char, data, false))
		c.emit(ctx, session.Event{Type: session.EventWriteAck, Characteristic: id, Err: err})
	})
	return nil
}

func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		client := c.client
		c.client = nil
		c.profile = nil
		c.mu.Unlock()

		if client != nil {
			err = NormalizeError(client.CancelConnection())
		}
		c.logger.WithField("address", c.address).Debug("BLE link closed")
	})
	return err
}

func (c *connection) emit(ctx context.Context, ev session.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// findCharacteristic resolves id against a discovered profile.
func findCharacteristic(profile *ble.Profile, id device.CharacteristicID) (*ble.Characteristic, error) {
	svcUUID, err := ble.Parse(id.Service)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", id.Service, err)
	}
	charUUID, err := ble.Parse(id.Characteristic)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", id.Characteristic, err)
	}

	for _, svc := range profile.Services {
		if !svc.UUID.Equal(svcUUID) {
			continue
		}
		for _, char := range svc.Characteristics {
			if char.UUID.Equal(charUUID) {
				return char, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{id.Service, id.Characteristic}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{id.Service}}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
