package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/prefs"
	"github.com/srg/boks/internal/remote"
)

// powerOffCmd represents the power-off command
var powerOffCmd = &cobra.Command{
	Use:   "power-off [ADDRESS...]",
	Short: "Switch speakers off",
	Long: `Connect to speakers and switch them off.

Without addresses every selected speaker is switched off. The pin stored
for each speaker is used unless --pin is given.`,
	RunE: runPowerOff,
}

var powerOffPin string

func init() {
	powerOffCmd.Flags().StringVar(&powerOffPin, "pin", "", "Unlock pin (defaults to the stored pin)")
}

// powerOffKeys resolves the session keys to switch off.
func powerOffKeys(stored prefs.Prefs, addresses []string, pinFlag string) ([]device.Key, error) {
	if len(addresses) == 0 {
		addresses = stored.Selected
	}
	if len(addresses) == 0 {
		return nil, errors.New("no speaker given and none selected")
	}

	override := pinFlag != ""
	pin, err := device.ParsePin(pinFlag)
	if err != nil {
		return nil, err
	}

	keys := make([]device.Key, 0, len(addresses))
	for _, a := range addresses {
		address := strings.ToUpper(strings.TrimSpace(a))
		key := device.Key{Address: address, Pin: stored.ConfigFor(address).Pin}
		if override {
			key.Pin = pin
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func runPowerOff(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	store, err := prefs.OpenFileStore(cfg.PrefsPath, logger)
	if err != nil {
		return err
	}
	keys, err := powerOffKeys(store.Current(), args, powerOffPin)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	adapter, err := openAdapter(cfg.BLEOptions(), logger)
	if err != nil {
		return err
	}
	r := remote.New(adapter, nil, cfg.RemoteOptions(), logger, nil)
	defer r.Close()

	var errs []error
	for _, key := range keys {
		progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Powering off "+key.Address, "Connecting", cfg.ConnectTimeout)
		progress.Start()
		err := r.PowerOff(commandContext(cmd), key, cfg.ConnectTimeout)
		progress.Stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key.Address, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s switched off\n", key.Address)
	}
	return errors.Join(errs...)
}
