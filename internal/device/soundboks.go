package device

import (
	"fmt"
	"strings"
)

const (
	// BrandMarker is the advertised-name fragment every SOUNDBOKS carries.
	BrandMarker = "SOUNDBOKS"

	namePrefix = BrandMarker + " "
)

// Device is a recognized speaker. Two devices are the same speaker when their
// addresses are equal; the name is display-only and may change between scans.
type Device struct {
	Address string `json:"address" yaml:"address"`
	Name    string `json:"name" yaml:"name"`
}

// DebugName renders the device for log lines.
func (d Device) DebugName() string {
	return fmt.Sprintf("[%s ~ %s]", d.Name, d.Address)
}

// Peer is a raw platform record: a scan result, a bonded device or a
// connected device, before recognition.
type Peer struct {
	Address string
	Alias   string
}

// IsSoundboks reports whether an advertised name identifies a SOUNDBOKS.
// Names starting with '#' are team-up aliases and are accepted too.
func IsSoundboks(name string) bool {
	return strings.HasPrefix(name, "#") || ContainsIgnoreCase(name, BrandMarker)
}

// IsSoundboks reports whether the peer is a recognized speaker.
func (p Peer) IsSoundboks() bool {
	return IsSoundboks(p.Alias)
}

// Device converts the peer into a Device, deriving the display name.
func (p Peer) Device() Device {
	return Device{Address: p.Address, Name: DisplayName(p.Alias, p.Address)}
}

// Recognize filters peers down to speakers, preserving order.
func Recognize(peers []Peer) []Device {
	out := make([]Device, 0, len(peers))
	for _, p := range peers {
		if p.IsSoundboks() {
			out = append(out, p.Device())
		}
	}
	return out
}

// DisplayName strips the brand prefix and the team-up marker from an
// advertised name. An empty result falls back to the address.
func DisplayName(advertised, address string) string {
	name := strings.TrimPrefix(advertised, namePrefix)
	name = strings.TrimPrefix(name, "#")
	name = strings.TrimSpace(name)
	if name == "" {
		return address
	}
	return name
}

// Key identifies a pooled session: the same address unlocked with a
// different pin is a different session.
type Key struct {
	Address string
	Pin     Pin
}

func (k Key) String() string {
	if !k.Pin.IsSet() {
		return k.Address
	}
	return k.Address + "#" + k.Pin.String()
}
