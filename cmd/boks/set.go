package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/prefs"
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set [ADDRESS...]",
	Short: "Change stored speaker configuration",
	Long: `Change the stored configuration of one or more speakers.

Without addresses the change applies to every selected speaker. Only the
flags given are changed; the rest of each speaker's configuration is kept.
A running "boks run" applies the change within a second.`,
	Example: `  boks set AA:BB:CC:DD:EE:01 --volume 0.8 --sound-profile bass
  boks set --channel left --team-up host
  boks set AA:BB:CC:DD:EE:01 --pin 1234`,
	RunE: runSet,
}

// configChanges holds the flags that were actually given.
type configChanges struct {
	volume       *float64
	soundProfile *device.SoundProfile
	channel      *device.Channel
	teamUpMode   *device.TeamUpMode
	pin          *device.Pin
}

func (c configChanges) empty() bool {
	return c.volume == nil && c.soundProfile == nil && c.channel == nil && c.teamUpMode == nil && c.pin == nil
}

func (c configChanges) apply(cfg device.Config) (device.Config, error) {
	if c.volume != nil {
		cfg.Volume = *c.volume
	}
	if c.soundProfile != nil {
		cfg.SoundProfile = *c.soundProfile
	}
	if c.channel != nil {
		cfg.Channel = *c.channel
	}
	if c.teamUpMode != nil {
		cfg.TeamUpMode = *c.teamUpMode
	}
	if c.pin != nil {
		cfg.Pin = *c.pin
	}
	return cfg, cfg.Validate()
}

func init() {
	addConfigFlags(setCmd)
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("volume", 0, "Volume between 0 and 1")
	cmd.Flags().String("sound-profile", "", "Sound profile (bass, power, indoor)")
	cmd.Flags().String("channel", "", "Channel (left, mono, right)")
	cmd.Flags().String("team-up", "", "Team-up mode (solo, host, join)")
	cmd.Flags().String("pin", "", "Four-digit unlock pin, or \"none\" to clear it")
}

// parseConfigChanges reads the changed flags of cmd.
func parseConfigChanges(cmd *cobra.Command) (configChanges, error) {
	var c configChanges
	flags := cmd.Flags()

	if flags.Changed("volume") {
		v, _ := flags.GetFloat64("volume")
		c.volume = &v
	}
	if flags.Changed("sound-profile") {
		s, _ := flags.GetString("sound-profile")
		p, err := device.ParseSoundProfile(s)
		if err != nil {
			return c, err
		}
		c.soundProfile = &p
	}
	if flags.Changed("channel") {
		s, _ := flags.GetString("channel")
		ch, err := device.ParseChannel(s)
		if err != nil {
			return c, err
		}
		c.channel = &ch
	}
	if flags.Changed("team-up") {
		s, _ := flags.GetString("team-up")
		m, err := device.ParseTeamUpMode(s)
		if err != nil {
			return c, err
		}
		c.teamUpMode = &m
	}
	if flags.Changed("pin") {
		s, _ := flags.GetString("pin")
		p, err := device.ParsePin(s)
		if err != nil {
			return c, err
		}
		c.pin = &p
	}
	return c, nil
}

// updateConfigs applies changes to addresses, or to the selection when no
// address is given.
func updateConfigs(ctx context.Context, store prefs.Store, addresses []string, changes configChanges) (prefs.Prefs, error) {
	var result prefs.Prefs
	err := store.Update(ctx, func(p prefs.Prefs) (prefs.Prefs, error) {
		targets := addresses
		if len(targets) == 0 {
			targets = p.Selected
		}
		if len(targets) == 0 {
			return p, errors.New("no speaker given and none selected")
		}

		for _, a := range targets {
			cfg, err := changes.apply(p.ConfigFor(a))
			if err != nil {
				return p, fmt.Errorf("%s: %w", a, err)
			}
			p.SetConfig(a, cfg)
		}
		result = p
		return p, nil
	})
	return result, err
}

func runSet(cmd *cobra.Command, args []string) error {
	changes, err := parseConfigChanges(cmd)
	if err != nil {
		return err
	}
	if changes.empty() {
		return errors.New("nothing to change: give at least one of --volume, --sound-profile, --channel, --team-up, --pin")
	}

	cfg, logger, err := loadConfig(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	store, err := prefs.OpenFileStore(cfg.PrefsPath, logger)
	if err != nil {
		return err
	}
	p, err := updateConfigs(commandContext(cmd), store, args, changes)
	if err != nil {
		return err
	}
	return displayPrefs(cmd.OutOrStdout(), p, "table")
}
