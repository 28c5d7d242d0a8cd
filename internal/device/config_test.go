package device_test

import (
	"testing"

	"github.com/srg/boks/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMerge(t *testing.T) {
	// GOAL: Verify merged config averages volume and keeps only common fields
	//
	// TEST SCENARIO: merge agreeing and disagreeing configs → averaged volume → defaults for conflicts

	a := device.Config{Volume: 0.2, SoundProfile: device.SoundProfileBass, Channel: device.ChannelLeft, TeamUpMode: device.TeamUpHost, Pin: device.MustPin(1)}
	b := device.Config{Volume: 0.6, SoundProfile: device.SoundProfileBass, Channel: device.ChannelRight, TeamUpMode: device.TeamUpHost, Pin: device.MustPin(2)}

	merged := device.Merge(a, b)
	assert.InDelta(t, 0.4, merged.Volume, 1e-9, "volume MUST be averaged")
	assert.Equal(t, device.SoundProfileBass, merged.SoundProfile, "common profile MUST survive")
	assert.Equal(t, device.ChannelMono, merged.Channel, "conflicting channel MUST fall back to default")
	assert.Equal(t, device.TeamUpHost, merged.TeamUpMode, "common mode MUST survive")
	assert.False(t, merged.Pin.IsSet(), "conflicting pins MUST drop the pin")

	assert.Equal(t, device.DefaultConfig(), device.Merge(), "empty merge MUST be the default")
	assert.Equal(t, a, device.Merge(a), "single merge MUST be identity")
}

func TestConfigYAML(t *testing.T) {
	// GOAL: Verify YAML decoding fills defaults, normalizes case and validates ranges

	t.Run("partial document", func(t *testing.T) {
		var cfg device.Config
		require.NoError(t, yaml.Unmarshal([]byte("volume: 0.8\nchannel: left\npin: 1234\n"), &cfg))
		assert.Equal(t, 0.8, cfg.Volume)
		assert.Equal(t, device.ChannelLeft, cfg.Channel, "enum case MUST be normalized")
		assert.Equal(t, device.SoundProfilePower, cfg.SoundProfile, "missing fields MUST take defaults")
		assert.Equal(t, device.MustPin(1234), cfg.Pin)
	})

	t.Run("round trip without pin", func(t *testing.T) {
		out, err := yaml.Marshal(device.DefaultConfig())
		require.NoError(t, err)
		assert.NotContains(t, string(out), "pin", "absent pin MUST be omitted")

		var back device.Config
		require.NoError(t, yaml.Unmarshal(out, &back))
		assert.Equal(t, device.DefaultConfig(), back)
	})

	t.Run("out of range", func(t *testing.T) {
		var cfg device.Config
		assert.Error(t, yaml.Unmarshal([]byte("volume: 1.5\n"), &cfg), "MUST reject volume above 1")
		assert.Error(t, yaml.Unmarshal([]byte("pin: 10000\n"), &cfg), "MUST reject five-digit pins")
		assert.Error(t, yaml.Unmarshal([]byte("soundProfile: loud\n"), &cfg), "MUST reject unknown profiles")
	})
}

func TestParsePin(t *testing.T) {
	p, err := device.ParsePin("0042")
	require.NoError(t, err)
	assert.Equal(t, 42, p.Code())
	assert.Equal(t, "0042", p.String())

	p, err = device.ParsePin("")
	require.NoError(t, err)
	assert.False(t, p.IsSet())

	_, err = device.ParsePin("abc")
	assert.Error(t, err)
}
