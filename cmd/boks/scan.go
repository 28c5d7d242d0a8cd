package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/prefs"
	"github.com/srg/boks/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for SOUNDBOKS speakers",
	Long: `Scan for SOUNDBOKS speakers advertising nearby and list them with
their stored configuration.

Speakers are recognized by name; use --all to list every advertising
peer. The scan does not connect to anything.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanBlockList []string
	scanAll       bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan_timeout from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Include peers that are not SOUNDBOKS speakers")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := validateFormat(scanFormat); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	adapter, err := openAdapter(cfg.BLEOptions(), logger)
	if err != nil {
		return err
	}
	s, err := scanner.NewScanner(adapter, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for speakers", "Scanning", duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:   duration,
		AllDevices: scanAll,
		AllowList:  scanAllowList,
		BlockList:  scanBlockList,
	}, progress.Callback())
	progress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	stored := prefs.Prefs{}
	if store, err := prefs.OpenFileStore(cfg.PrefsPath, logger); err == nil {
		stored = store.Current()
	} else {
		logger.WithError(err).Warn("Preferences unavailable, showing defaults")
	}

	return displayDevices(cmd.OutOrStdout(), deviceRows(devices, nil, stored), scanFormat)
}
