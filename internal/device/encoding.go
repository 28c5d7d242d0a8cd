package device

import (
	"math"
	"strings"
)

// PowerOffPayload switches the speaker off.
var PowerOffPayload = []byte{0x00}

// VolumeLevel maps v in [0,1] onto 0..255 (truncating) and reinterprets the
// result as a signed byte, which is what the firmware reads.
// Out-of-range input is clamped; NaN is treated as silence.
func VolumeLevel(v float64) int8 {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	n := int(255 * v)
	if n > 127 {
		n -= 256
	}
	return int8(n)
}

// EncodeVolume returns the single-byte volume payload.
func EncodeVolume(v float64) []byte {
	return []byte{byte(VolumeLevel(v))}
}

// Bytes returns the wire payload for the profile.
func (p SoundProfile) Bytes() []byte {
	switch p {
	case SoundProfileBass:
		return []byte{0x01}
	case SoundProfileIndoor:
		return []byte{0x02}
	default:
		return []byte{0x00}
	}
}

// Bytes returns the wire payload for the channel.
func (c Channel) Bytes() []byte {
	switch c {
	case ChannelLeft:
		return []byte{0x01}
	case ChannelRight:
		return []byte{0x02}
	default:
		return []byte{0x00}
	}
}

// Bytes returns the ASCII payload for the mode: "solo", "host" or "join".
func (m TeamUpMode) Bytes() []byte {
	if m == "" {
		m = TeamUpSolo
	}
	return []byte(strings.ToLower(string(m)))
}

// EncodePinUnlock returns the "aup" + zero-padded pin payload written to
// unlock a protected speaker. An absent pin yields nil.
func EncodePinUnlock(p Pin) []byte {
	if !p.IsSet() {
		return nil
	}
	return []byte("aup" + p.String())
}
