package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	goble "github.com/srg/boks/internal/device/go-ble"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/platform"
	"github.com/srg/boks/internal/platform/bluez"
	"github.com/srg/boks/internal/remote"
	"github.com/srg/boks/pkg/config"
)

// engine is the host wiring shared by the commands: the BLE adapter for
// scanning and GATT, the platform daemon for everything else, and the
// session pool on top.
type engine struct {
	platform platform.Platform
	remote   *remote.Remote
	metrics  *metrics.Collector
	closers  []func() error
}

// openAdapter and connectBluez are swapped in tests.
var (
	openAdapter = func(opts goble.Options, logger *logrus.Logger) (*goble.Adapter, error) {
		return goble.NewAdapter(opts, logger)
	}
	connectBluez = func(opts bluez.Options, logger *logrus.Logger) (platformClient, error) {
		return bluez.Connect(opts, logger)
	}
)

type platformClient interface {
	platform.Devices
	platform.Audio
	platform.PermissionGate
	Close() error
}

func openEngine(cfg *config.Config, logger *logrus.Logger) (*engine, error) {
	adapter, err := openAdapter(cfg.BLEOptions(), logger)
	if err != nil {
		return nil, err
	}

	e := &engine{metrics: metrics.New()}
	p := platform.Combined{Scanner: adapter}

	client, err := connectBluez(cfg.BluezOptions(), logger)
	switch {
	case err == nil:
		p.Devices, p.Audio, p.PermissionGate = client, client, client
		e.closers = append(e.closers, client.Close)
	case errors.Is(err, device.ErrUnsupported):
		logger.WithError(err).Warn("Host Bluetooth daemon unavailable, relying on scans only")
		p.Devices, p.Audio, p.PermissionGate = platform.Detached{}, platform.Detached{}, platform.StaticGate(true)
	default:
		return nil, fmt.Errorf("failed to open platform: %w", err)
	}

	e.platform = p
	e.remote = remote.New(adapter, p.Devices, cfg.RemoteOptions(), logger, e.metrics)
	return e, nil
}

func (e *engine) Close() error {
	e.remote.Close()
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
