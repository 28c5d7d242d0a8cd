// Package platform declares what the engine needs from the host Bluetooth
// stack beyond GATT sessions: scanning, bonded and connected device queries,
// change broadcasts, the active audio sink and the permission gate.
package platform

import (
	"context"

	"github.com/srg/boks/internal/device"
)

// Scanner reports advertisements until ctx is done.
type Scanner interface {
	Scan(ctx context.Context, handler func(device.Peer)) error
}

// Devices answers point-in-time questions about known peers.
type Devices interface {
	// ConnectedDevices lists peers with an open GATT link.
	ConnectedDevices(ctx context.Context) ([]device.Peer, error)
	// BondedDevices lists paired peers.
	BondedDevices(ctx context.Context) ([]device.Peer, error)
	// IsConnected reports whether the peer has any open link.
	IsConnected(ctx context.Context, address string) (bool, error)
	// Broadcasts ticks whenever adapter state, bond state or a link changes.
	// The channel closes when ctx is done.
	Broadcasts(ctx context.Context) (<-chan struct{}, error)
}

// Audio reports the peer currently receiving the audio stream.
type Audio interface {
	ActiveAudioDevice(ctx context.Context) (device.Peer, bool, error)
}

// PermissionGate yields whether the engine may use Bluetooth at all,
// current value first.
type PermissionGate interface {
	Permissions(ctx context.Context) <-chan bool
}

// Platform is the full host surface.
type Platform interface {
	Scanner
	Devices
	Audio
	PermissionGate
}

// Combined assembles a Platform from parts.
type Combined struct {
	Scanner
	Devices
	Audio
	PermissionGate
}

// StaticGate always reports the same permission.
type StaticGate bool

func (g StaticGate) Permissions(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	ch <- bool(g)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// Detached answers Devices and Audio for hosts without a queryable
// Bluetooth daemon: nothing is bonded, linked or playing, and nothing ever
// changes. Discovery then relies on scanning alone.
type Detached struct{}

func (Detached) ConnectedDevices(ctx context.Context) ([]device.Peer, error) { return nil, nil }

func (Detached) BondedDevices(ctx context.Context) ([]device.Peer, error) { return nil, nil }

func (Detached) IsConnected(ctx context.Context, address string) (bool, error) { return false, nil }

func (Detached) Broadcasts(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (Detached) ActiveAudioDevice(ctx context.Context) (device.Peer, bool, error) {
	return device.Peer{}, false, nil
}
