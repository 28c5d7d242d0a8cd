package device

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// SoundProfile selects the speaker equalizer preset.
type SoundProfile string

const (
	SoundProfileBass   SoundProfile = "BASS"
	SoundProfilePower  SoundProfile = "POWER"
	SoundProfileIndoor SoundProfile = "INDOOR"
)

// Channel selects which stereo channel the speaker plays.
type Channel string

const (
	ChannelLeft  Channel = "LEFT"
	ChannelMono  Channel = "MONO"
	ChannelRight Channel = "RIGHT"
)

// TeamUpMode selects how the speaker participates in a team-up group.
type TeamUpMode string

const (
	TeamUpSolo TeamUpMode = "SOLO"
	TeamUpHost TeamUpMode = "HOST"
	TeamUpJoin TeamUpMode = "JOIN"
)

// ParseSoundProfile parses a profile name case-insensitively.
func ParseSoundProfile(s string) (SoundProfile, error) {
	switch p := SoundProfile(strings.ToUpper(s)); p {
	case SoundProfileBass, SoundProfilePower, SoundProfileIndoor:
		return p, nil
	}
	return "", fmt.Errorf("invalid sound profile %q (must be bass, power or indoor)", s)
}

// ParseChannel parses a channel name case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToUpper(s)); c {
	case ChannelLeft, ChannelMono, ChannelRight:
		return c, nil
	}
	return "", fmt.Errorf("invalid channel %q (must be left, mono or right)", s)
}

// ParseTeamUpMode parses a team-up mode name case-insensitively.
func ParseTeamUpMode(s string) (TeamUpMode, error) {
	switch m := TeamUpMode(strings.ToUpper(s)); m {
	case TeamUpSolo, TeamUpHost, TeamUpJoin:
		return m, nil
	}
	return "", fmt.Errorf("invalid team-up mode %q (must be solo, host or join)", s)
}

// Config is the desired state of one speaker.
type Config struct {
	Volume       float64      `yaml:"volume" json:"volume"`
	SoundProfile SoundProfile `yaml:"soundProfile" json:"soundProfile"`
	Channel      Channel      `yaml:"channel" json:"channel"`
	TeamUpMode   TeamUpMode   `yaml:"teamUpMode" json:"teamUpMode"`
	Pin          Pin          `yaml:"pin,omitempty" json:"-"`
}

// DefaultConfig is what a speaker without stored preferences is driven to.
func DefaultConfig() Config {
	return Config{
		Volume:       0.5,
		SoundProfile: SoundProfilePower,
		Channel:      ChannelMono,
		TeamUpMode:   TeamUpSolo,
	}
}

// Validate checks ranges and enum members.
func (c Config) Validate() error {
	if math.IsNaN(c.Volume) || c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume %v out of range 0..1", c.Volume)
	}
	if _, err := ParseSoundProfile(string(c.SoundProfile)); err != nil {
		return err
	}
	if _, err := ParseChannel(string(c.Channel)); err != nil {
		return err
	}
	if _, err := ParseTeamUpMode(string(c.TeamUpMode)); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML fills missing fields from DefaultConfig and normalizes enum case.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := node.Decode(&p); err != nil {
		return err
	}
	cfg := Config(p)
	cfg.SoundProfile = SoundProfile(strings.ToUpper(string(cfg.SoundProfile)))
	cfg.Channel = Channel(strings.ToUpper(string(cfg.Channel)))
	cfg.TeamUpMode = TeamUpMode(strings.ToUpper(string(cfg.TeamUpMode)))
	if err := cfg.Validate(); err != nil {
		return err
	}
	*c = cfg
	return nil
}

// Merge folds several configs into the one shown when editing a selection.
// Volume is averaged; every other field keeps its value when all configs
// agree and falls back to the default otherwise. Pin survives only when
// every config carries the same pin.
func Merge(configs ...Config) Config {
	def := DefaultConfig()
	if len(configs) == 0 {
		return def
	}

	first := configs[0]
	merged := first
	var volume float64
	for _, c := range configs {
		volume += c.Volume
		if c.SoundProfile != first.SoundProfile {
			merged.SoundProfile = def.SoundProfile
		}
		if c.Channel != first.Channel {
			merged.Channel = def.Channel
		}
		if c.TeamUpMode != first.TeamUpMode {
			merged.TeamUpMode = def.TeamUpMode
		}
		if c.Pin != first.Pin {
			merged.Pin = NoPin
		}
	}
	merged.Volume = volume / float64(len(configs))
	return merged
}
