package session

import "github.com/srg/boks/internal/device"

// EventType tells which signal a link raised.
type EventType int

const (
	// EventConnectionState reports the link going up or down.
	EventConnectionState EventType = iota
	// EventServicesDiscovered reports GATT discovery completion.
	EventServicesDiscovered
	// EventWriteAck reports that the peer acknowledged a write.
	EventWriteAck
)

func (t EventType) String() string {
	switch t {
	case EventConnectionState:
		return "connection_state"
	case EventServicesDiscovered:
		return "services_discovered"
	case EventWriteAck:
		return "write_ack"
	default:
		return "unknown"
	}
}

// Event is a callback from the platform GATT stack.
type Event struct {
	Type           EventType
	Connected      bool                    // EventConnectionState
	Characteristic device.CharacteristicID // EventWriteAck
	Err            error                   // EventServicesDiscovered, EventWriteAck
}

// Link is the platform side of one GATT connection. A link keeps trying to
// (re)connect on its own until closed and reports progress through Events.
type Link interface {
	// Events delivers link signals in order. The channel is never closed
	// while the link is open.
	Events() <-chan Event

	// DiscoverServices starts GATT discovery without blocking; completion
	// arrives as EventServicesDiscovered.
	DiscoverServices() error

	// WriteCharacteristic issues a write with response without blocking; the
	// outcome arrives as EventWriteAck. A characteristic missing from the
	// discovered profile is reported synchronously as *device.NotFoundError.
	WriteCharacteristic(id device.CharacteristicID, payload []byte) error

	// Close drops the connection and stops reconnecting.
	Close() error
}

// Dialer opens links by device address.
type Dialer interface {
	Dial(address string) (Link, error)
}
