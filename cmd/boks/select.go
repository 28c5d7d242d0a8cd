package main

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/prefs"
)

// selectCmd represents the select command
var selectCmd = &cobra.Command{
	Use:   "select [ADDRESS...]",
	Short: "Choose the speakers that \"boks set\" edits by default",
	RunE:  runSelect,
}

var (
	selectRemove bool
	selectClear  bool
)

func init() {
	selectCmd.Flags().BoolVar(&selectRemove, "remove", false, "Remove the addresses from the selection")
	selectCmd.Flags().BoolVar(&selectClear, "clear", false, "Clear the selection")
}

func runSelect(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !selectClear {
		return errors.New("give at least one address, or --clear")
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

	var result prefs.Prefs
	err = store.Update(commandContext(cmd), func(p prefs.Prefs) (prefs.Prefs, error) {
		switch {
		case selectClear:
			p.Selected = nil
		case selectRemove:
			p.Deselect(args...)
		default:
			p.Select(args...)
		}
		result = p
		return p, nil
	})
	if err != nil {
		return err
	}
	return displayPrefs(cmd.OutOrStdout(), result, "table")
}
