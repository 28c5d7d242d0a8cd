package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/prefs"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored preferences",
	RunE:  runShow,
}

var showFormat string

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "table", "Output format (table, json)")
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := validateFormat(showFormat); err != nil {
		return err
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
	return displayPrefs(cmd.OutOrStdout(), store.Current(), showFormat)
}
