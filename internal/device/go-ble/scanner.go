package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/groutine"
	"github.com/srg/boks/internal/session"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDefaultDevice

// Options tunes the redial loop.
type Options struct {
	// DialTimeout bounds one connect attempt; the link then retries.
	DialTimeout time.Duration `default:"10s"`
	// RedialDelay is the pause between connect attempts.
	RedialDelay time.Duration `default:"1s"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

type scanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler) error

// Adapter is the local BLE host: it scans for advertisements and dials
// links for sessions.
type Adapter struct {
	scan   scanFunc
	dial   dialFunc
	opts   Options
	logger *logrus.Logger
}

// NewAdapter opens the platform BLE device.
func NewAdapter(opts Options, logger *logrus.Logger) (*Adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	dial := func(ctx context.Context, address string) (gattClient, error) {
		client, err := dev.Dial(ctx, ble.NewAddr(address))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return newAdapter(dev.Scan, dial, opts, logger), nil
}

func newAdapter(scan scanFunc, dial dialFunc, opts Options, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Adapter{scan: scan, dial: dial, opts: opts, logger: logger}
}

// Dial implements session.Dialer. The returned link connects in the background.
func (a *Adapter) Dial(address string) (session.Link, error) {
	if strings.TrimSpace(address) == "" {
		a.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	c := newConnection(address, a.dial, a.opts, a.logger)
	groutine.Go(c.ctx, "gatt-link", c.run)
	return c, nil
}

// Scan reports every advertisement until ctx is done. Duplicates are
// delivered so callers see devices that come back into range.
func (a *Adapter) Scan(ctx context.Context, handler func(device.Peer)) error {
	err := a.scan(ctx, true, func(adv ble.Advertisement) {
		handler(device.Peer{Address: strings.ToUpper(adv.Addr().String()), Alias: adv.LocalName()})
	})
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return NormalizeError(err)
}
