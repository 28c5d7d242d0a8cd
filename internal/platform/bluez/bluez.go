// Package bluez answers the platform device questions (bonded, connected,
// playing, powered) from BlueZ over the system D-Bus.
package bluez

import (
	"context"
	"fmt"
	"slices"

	"github.com/godbus/dbus/v5"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
)

const (
	busName          = "org.bluez"
	adapterIface     = "org.bluez.Adapter1"
	deviceIface      = "org.bluez.Device1"
	transportIface   = "org.bluez.MediaTransport1"
	propsIface       = "org.freedesktop.DBus.Properties"
	objectManager    = "org.freedesktop.DBus.ObjectManager"
	signalBufferSize = 16
)

// Options selects the adapter.
type Options struct {
	Adapter string `default:"hci0"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// Client wraps a system bus connection scoped to one adapter.
type Client struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	logger  *logrus.Logger
}

// Connect opens the system bus and checks BlueZ is present on it.
func Connect(opts Options, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Adapter == "" {
		opts.Adapter = DefaultOptions().Adapter
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: org.bluez not found on system bus, is bluetooth.service running?", device.ErrUnsupported)
	}

	return &Client{
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + opts.Adapter),
		logger:  logger,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) snapshot(ctx context.Context) (snapshot, error) {
	var objects managedObjects
	call := c.conn.Object(busName, "/").CallWithContext(ctx, objectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return snapshot{}, fmt.Errorf("GetManagedObjects failed: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return snapshot{}, fmt.Errorf("failed to parse managed objects: %w", err)
	}
	return parseObjects(objects, c.adapter), nil
}

func (c *Client) ConnectedDevices(ctx context.Context) ([]device.Peer, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.filter(func(p peerState) bool { return p.connected }), nil
}

func (c *Client) BondedDevices(ctx context.Context) ([]device.Peer, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.filter(func(p peerState) bool { return p.paired }), nil
}

// IsConnected reports the Device1 Connected property. Unknown devices are
// not connected.
func (c *Client) IsConnected(ctx context.Context, address string) (bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return false, err
	}
	p, ok := snap.byPath(deviceObjectPath(c.adapter, address))
	if !ok {
		p, ok = snap.byAddress(address)
	}
	return ok && p.connected, nil
}

// ActiveAudioDevice resolves the device behind the active media transport.
func (c *Client) ActiveAudioDevice(ctx context.Context) (device.Peer, bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return device.Peer{}, false, err
	}
	if snap.playing == "" {
		return device.Peer{}, false, nil
	}
	p, ok := snap.byPath(snap.playing)
	return p.peer, ok, nil
}

// Broadcasts ticks on every BlueZ property change and on devices or
// transports appearing and disappearing. Ticks coalesce.
func (c *Client) Broadcasts(ctx context.Context) (<-chan struct{}, error) {
	rules := []string{
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',interface='" + objectManager + "',member='InterfacesAdded'",
		"type='signal',interface='" + objectManager + "',member='InterfacesRemoved'",
	}
	for _, rule := range rules {
		if err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return nil, fmt.Errorf("add match %q: %w", rule, err)
		}
	}

	signals := make(chan *dbus.Signal, signalBufferSize)
	c.conn.Signal(signals)

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer c.conn.RemoveSignal(signals)
		for {
			select {
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if !relevant(sig) {
					continue
				}
				c.logger.WithFields(logrus.Fields{
					"path":   sig.Path,
					"signal": sig.Name,
				}).Debug("BlueZ broadcast")
				select {
				case out <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Permissions yields whether the adapter is powered, current value first.
// Query failures count as not permitted.
func (c *Client) Permissions(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)
	ticks, err := c.Broadcasts(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Adapter broadcasts unavailable, reporting Bluetooth off")
		out <- false
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}

	go func() {
		defer close(out)
		var last, known bool
		for {
			powered := c.powered(ctx)
			if !known || powered != last {
				known, last = true, powered
				select {
				case out <- powered:
				case <-ctx.Done():
					return
				}
			}
			select {
			case _, ok := <-ticks:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *Client) powered(ctx context.Context) bool {
	snap, err := c.snapshot(ctx)
	if err != nil {
		c.logger.WithError(err).Debug("Failed to read adapter state")
		return false
	}
	return snap.powered
}

func relevant(sig *dbus.Signal) bool {
	switch sig.Name {
	case propsIface + ".PropertiesChanged":
		if len(sig.Body) == 0 {
			return false
		}
		iface, _ := sig.Body[0].(string)
		return iface == adapterIface || iface == deviceIface || iface == transportIface
	case objectManager + ".InterfacesAdded", objectManager + ".InterfacesRemoved":
		return true
	}
	return false
}
