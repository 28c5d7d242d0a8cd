package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/stream"
)

// FakePlatform is an in-memory platform.Platform. Every mutator raises a
// broadcast tick.
type FakePlatform struct {
	mu        sync.Mutex
	linked    map[string]bool
	bonded    []device.Peer
	gatt      []device.Peer
	audio     *device.Peer
	scanErr   error
	scans     chan device.Peer
	ticks     *stream.Value[int]
	perms     *stream.Value[bool]
	scanCalls atomic.Int32
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		linked: make(map[string]bool),
		scans:  make(chan device.Peer, 64),
		ticks:  stream.NewValue(0, nil),
		perms:  stream.NewValue(true, stream.Equal[bool]),
	}
}

func (f *FakePlatform) tick() {
	f.ticks.Update(func(n int) int { return n + 1 })
}

// Advertise hands a peer to the active scanner.
func (f *FakePlatform) Advertise(p device.Peer) { f.scans <- p }

func (f *FakePlatform) Scan(ctx context.Context, handler func(device.Peer)) error {
	f.scanCalls.Add(1)
	f.mu.Lock()
	err := f.scanErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for {
		select {
		case p := <-f.scans:
			handler(p)
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *FakePlatform) ScanCalls() int { return int(f.scanCalls.Load()) }

func (f *FakePlatform) SetScanError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanErr = err
}

// SetLinked sets the platform link state of one address.
func (f *FakePlatform) SetLinked(address string, linked bool) {
	f.mu.Lock()
	f.linked[address] = linked
	f.mu.Unlock()
	f.tick()
}

func (f *FakePlatform) SetBonded(peers ...device.Peer) {
	f.mu.Lock()
	f.bonded = peers
	f.mu.Unlock()
	f.tick()
}

// SetGATTConnected sets the peers reported with an open GATT link.
func (f *FakePlatform) SetGATTConnected(peers ...device.Peer) {
	f.mu.Lock()
	f.gatt = peers
	f.mu.Unlock()
	f.tick()
}

// SetAudio sets the active audio sink; nil clears it.
func (f *FakePlatform) SetAudio(p *device.Peer) {
	f.mu.Lock()
	f.audio = p
	f.mu.Unlock()
	f.tick()
}

func (f *FakePlatform) SetPermission(granted bool) { f.perms.Set(granted) }

func (f *FakePlatform) ConnectedDevices(ctx context.Context) ([]device.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Peer(nil), f.gatt...), nil
}

func (f *FakePlatform) BondedDevices(ctx context.Context) ([]device.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Peer(nil), f.bonded...), nil
}

func (f *FakePlatform) IsConnected(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linked[address], nil
}

func (f *FakePlatform) Broadcasts(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	src := f.ticks.Subscribe(ctx)
	go func() {
		defer close(out)
		for range src {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (f *FakePlatform) ActiveAudioDevice(ctx context.Context) (device.Peer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audio == nil {
		return device.Peer{}, false, nil
	}
	return *f.audio, true, nil
}

func (f *FakePlatform) Permissions(ctx context.Context) <-chan bool {
	return f.perms.Subscribe(ctx)
}
