package testutils

import (
	"sync"
	"time"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/session"
)

// Write is one characteristic write observed by a FakeLink.
type Write struct {
	ID      device.CharacteristicID
	Payload []byte
	At      time.Time
}

// FakeLink is an in-memory session.Link. Writes are recorded and
// acknowledged asynchronously unless acks are being dropped.
type FakeLink struct {
	Address string

	mu             sync.Mutex
	events         chan session.Event
	writes         []Write
	dropAcks       int
	ackErr         error
	ackDelay       time.Duration
	missing        map[device.CharacteristicID]bool
	discoverCalls  int
	manualDiscover bool
	closed         bool
	closeErr       error
}

func NewFakeLink(address string) *FakeLink {
	return &FakeLink{
		Address: address,
		events:  make(chan session.Event, 256),
		missing: make(map[device.CharacteristicID]bool),
	}
}

func (l *FakeLink) Events() <-chan session.Event { return l.events }

// Connect raises a link-up event.
func (l *FakeLink) Connect() {
	l.events <- session.Event{Type: session.EventConnectionState, Connected: true}
}

// Disconnect raises a link-down event.
func (l *FakeLink) Disconnect() {
	l.events <- session.Event{Type: session.EventConnectionState, Connected: false}
}

// CompleteDiscovery raises services-discovered, for links in manual mode.
func (l *FakeLink) CompleteDiscovery() {
	l.events <- session.Event{Type: session.EventServicesDiscovered}
}

// ManualDiscovery stops DiscoverServices from completing on its own.
func (l *FakeLink) ManualDiscovery() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manualDiscover = true
}

func (l *FakeLink) DiscoverServices() error {
	l.mu.Lock()
	l.discoverCalls++
	manual := l.manualDiscover
	l.mu.Unlock()

	if !manual {
		go l.CompleteDiscovery()
	}
	return nil
}

func (l *FakeLink) WriteCharacteristic(id device.CharacteristicID, payload []byte) error {
	l.mu.Lock()
	if l.missing[id] {
		l.mu.Unlock()
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{id.Service, id.Characteristic}}
	}
	l.writes = append(l.writes, Write{ID: id, Payload: append([]byte(nil), payload...), At: time.Now()})
	drop := l.dropAcks > 0
	if drop {
		l.dropAcks--
	}
	ackErr, delay := l.ackErr, l.ackDelay
	l.mu.Unlock()

	if !drop {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			l.events <- session.Event{Type: session.EventWriteAck, Characteristic: id, Err: ackErr}
		}()
	}
	return nil
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.closeErr
}

// DropAcks makes the next n writes go unacknowledged.
func (l *FakeLink) DropAcks(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropAcks = n
}

// SetAckDelay delays every following acknowledgement.
func (l *FakeLink) SetAckDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ackDelay = d
}

// SetAckError makes following acknowledgements carry err.
func (l *FakeLink) SetAckError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ackErr = err
}

// SetCloseError makes Close return err.
func (l *FakeLink) SetCloseError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeErr = err
}

// Remove makes the characteristic absent from the profile.
func (l *FakeLink) Remove(id device.CharacteristicID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.missing[id] = true
}

func (l *FakeLink) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Payloads returns the payloads written to id, in order.
func (l *FakeLink) Payloads(id device.CharacteristicID) [][]byte {
	var out [][]byte
	for _, w := range l.Writes() {
		if w.ID == id {
			out = append(out, w.Payload)
		}
	}
	return out
}

// LastPayloads maps each written characteristic to its final payload.
func (l *FakeLink) LastPayloads() map[device.CharacteristicID][]byte {
	out := make(map[device.CharacteristicID][]byte)
	for _, w := range l.Writes() {
		out[w.ID] = w.Payload
	}
	return out
}

func (l *FakeLink) DiscoverCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discoverCalls
}

func (l *FakeLink) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// FakeDialer hands out FakeLinks and remembers them per address.
type FakeDialer struct {
	// AutoConnect raises link-up right after each dial.
	AutoConnect bool
	// Configure runs on every new link before it is returned.
	Configure func(*FakeLink)
	// Err fails every dial when set.
	Err error

	mu    sync.Mutex
	links map[string][]*FakeLink
}

func NewFakeDialer(autoConnect bool) *FakeDialer {
	return &FakeDialer{AutoConnect: autoConnect, links: make(map[string][]*FakeLink)}
}

func (d *FakeDialer) Dial(address string) (session.Link, error) {
	d.mu.Lock()
	if d.Err != nil {
		d.mu.Unlock()
		return nil, d.Err
	}
	link := NewFakeLink(address)
	if d.Configure != nil {
		d.Configure(link)
	}
	d.links[address] = append(d.links[address], link)
	auto := d.AutoConnect
	d.mu.Unlock()

	if auto {
		go link.Connect()
	}
	return link, nil
}

// Links returns every link dialed for address, oldest first.
func (d *FakeDialer) Links(address string) []*FakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeLink(nil), d.links[address]...)
}

// Last returns the newest link for address, or nil.
func (d *FakeDialer) Last(address string) *FakeLink {
	links := d.Links(address)
	if len(links) == 0 {
		return nil
	}
	return links[len(links)-1]
}

// Dials counts links dialed for address.
func (d *FakeDialer) Dials(address string) int {
	return len(d.Links(address))
}
