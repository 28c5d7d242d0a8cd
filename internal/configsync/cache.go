package configsync

import "github.com/srg/boks/internal/device"

// slot holds the last confirmed value of one field, or nothing.
type slot[T comparable] struct {
	value T
	known bool
}

func (s *slot[T]) matches(v T) bool { return s.known && s.value == v }

func (s *slot[T]) set(v T) { s.value, s.known = v, true }

func (s *slot[T]) forget() {
	var zero T
	s.value, s.known = zero, false
}

// Cache is the applied-value cache of one session: the last value each
// field was confirmed written with. Only the owning applier touches it.
//
// The pin slot names the pin the cached values were written under; unlocked
// tells whether that pin was confirmed on the current connection.
type Cache struct {
	pin          slot[device.Pin]
	unlocked     bool
	volume       slot[float64]
	soundProfile slot[device.SoundProfile]
	channel      slot[device.Channel]
	teamUpMode   slot[device.TeamUpMode]
}

// Reset forgets every field, the pin included.
func (c *Cache) Reset() {
	c.pin.forget()
	c.unlocked = false
	c.volume.forget()
	c.soundProfile.forget()
	c.channel.forget()
	c.teamUpMode.forget()
}

// Relock marks the unlock as lost, as after a reconnect. Field values stay
// cached.
func (c *Cache) Relock() { c.unlocked = false }

// Known returns the confirmed part of the cache as a config and a mask of
// the fields it holds.
func (c *Cache) Known() (device.Config, []string) {
	var (
		cfg    device.Config
		fields []string
	)
	if c.pin.known {
		cfg.Pin = c.pin.value
		fields = append(fields, FieldPin)
	}
	if c.volume.known {
		cfg.Volume = c.volume.value
		fields = append(fields, FieldVolume)
	}
	if c.soundProfile.known {
		cfg.SoundProfile = c.soundProfile.value
		fields = append(fields, FieldSoundProfile)
	}
	if c.channel.known {
		cfg.Channel = c.channel.value
		fields = append(fields, FieldChannel)
	}
	if c.teamUpMode.known {
		cfg.TeamUpMode = c.teamUpMode.value
		fields = append(fields, FieldTeamUpMode)
	}
	return cfg, fields
}
