package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/pkg/config"
)

// parseLogLevel maps --log-level and --verbose onto a logrus level, with
// --log-level taking precedence. Without either flag the CLI stays quiet.
func parseLogLevel(cmd *cobra.Command, fallback logrus.Level) (logrus.Level, error) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	switch logLevelStr {
	case "":
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return logrus.DebugLevel, nil
	}
	return fallback, nil
}

// loadConfig reads --config, applies the command-line overrides and builds
// the logger. quiet is the level used when no log flag is given.
func loadConfig(cmd *cobra.Command, quiet logrus.Level) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	level, err := parseLogLevel(cmd, quiet)
	if err != nil {
		return nil, nil, err
	}
	cfg.LogLevel = level

	if prefsPath, _ := cmd.Flags().GetString("prefs"); prefsPath != "" {
		cfg.PrefsPath = prefsPath
	}

	return cfg, cfg.NewLogger(), nil
}
