package device_test

import (
	"testing"

	"github.com/srg/boks/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestIsSoundboks(t *testing.T) {
	tests := []struct {
		name     string
		alias    string
		expected bool
	}{
		{name: "brand prefix", alias: "SOUNDBOKS 3F", expected: true},
		{name: "lower case brand", alias: "my soundboks", expected: true},
		{name: "team-up alias", alias: "#party", expected: true},
		{name: "other speaker", alias: "JBL Flip", expected: false},
		{name: "empty", alias: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, device.IsSoundboks(tt.alias), "recognition MUST match")
		})
	}
}

func TestPeerDevice(t *testing.T) {
	// GOAL: Verify display names drop the brand prefix and team-up marker
	//
	// TEST SCENARIO: convert peers → names stripped → address kept as identity

	assert.Equal(t, device.Device{Address: "AA", Name: "3F"}, device.Peer{Address: "AA", Alias: "SOUNDBOKS 3F"}.Device())
	assert.Equal(t, device.Device{Address: "BB", Name: "party"}, device.Peer{Address: "BB", Alias: "#party"}.Device())
	assert.Equal(t, device.Device{Address: "CC", Name: "CC"}, device.Peer{Address: "CC", Alias: "SOUNDBOKS "}.Device(),
		"empty name MUST fall back to the address")

	got := device.Recognize([]device.Peer{
		{Address: "AA", Alias: "SOUNDBOKS 3F"},
		{Address: "DD", Alias: "Headphones"},
	})
	assert.Equal(t, []device.Device{{Address: "AA", Name: "3F"}}, got, "MUST keep only speakers")
}

func TestKeyIdentity(t *testing.T) {
	// GOAL: Verify session keys distinguish pins for the same address

	a := device.Key{Address: "AA"}
	b := device.Key{Address: "AA", Pin: device.MustPin(1234)}
	c := device.Key{Address: "AA", Pin: device.MustPin(1234)}

	assert.NotEqual(t, a, b, "different pins MUST yield different keys")
	assert.Equal(t, b, c, "equal pins MUST yield equal keys")
	assert.Equal(t, "AA#1234", b.String())
	assert.Equal(t, "[3F ~ AA]", device.Device{Address: "AA", Name: "3F"}.DebugName())
}
