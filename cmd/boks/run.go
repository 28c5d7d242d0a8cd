package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boks/internal/configsync"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/discovery"
	"github.com/srg/boks/internal/groutine"
	"github.com/srg/boks/internal/metrics"
	"github.com/srg/boks/internal/prefs"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover speakers and keep them in sync",
	Long: `Run the discovery and sync engine until interrupted.

Every discovered speaker gets a session and is driven to its stored
configuration. Edits made with "boks set" (or directly in the preferences
file) are picked up and applied while the engine runs. The speaker list is
redrawn whenever it changes.`,
	RunE: runEngine,
}

var (
	runFormat      string
	runMetricsAddr string
	runQuiet       bool
)

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "table", "Output format (table, json)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9110)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print the speaker list")
}

func runEngine(cmd *cobra.Command, args []string) error {
	if err := validateFormat(runFormat); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}
	if runMetricsAddr != "" {
		cfg.MetricsAddr = runMetricsAddr
	}

	cmd.SilenceUsage = true

	store, err := prefs.OpenFileStore(cfg.PrefsPath, logger)
	if err != nil {
		return err
	}

	e, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close engine")
		}
	}()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aggregator := discovery.New(e.platform, e.remote, discovery.NewKnownCache(cfg.KnownDevices),
		cfg.DiscoveryOptions(), logger, e.metrics)
	syncer := configsync.New(aggregator, e.remote, store, cfg.SyncOptions(), logger, e.metrics)

	g := groutine.NewGroup(ctx)
	g.Go("prefs-watch", func(ctx context.Context) { store.Watch(ctx, prefs.DefaultPollInterval) })
	g.Go("discovery", func(ctx context.Context) { _ = aggregator.Run(ctx) })
	g.Go("sync", func(ctx context.Context) { _ = syncer.Run(ctx) })
	if cfg.MetricsAddr != "" {
		srv, err := metricsServer(cfg.MetricsAddr, e.metrics)
		if err != nil {
			g.Stop()
			return err
		}
		g.Go("metrics", func(ctx context.Context) { serveMetrics(ctx, srv, logger) })
	}
	if !runQuiet {
		g.Go("display", func(ctx context.Context) {
			watchDevices(ctx, cmd.OutOrStdout(), aggregator, store, runFormat)
		})
	}

	logger.WithField("prefs", store.Path()).Info("Engine running")
	<-ctx.Done()
	g.Stop()
	return nil
}

func metricsServer(addr string, m *metrics.Collector) (*http.Server, error) {
	registry, err := m.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}, nil
}

func serveMetrics(ctx context.Context, srv *http.Server, logger *logrus.Logger) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", srv.Addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics server failed")
	}
}

// watchDevices redraws the speaker list on every change of the list, the
// playing speaker or the stored preferences.
func watchDevices(ctx context.Context, w io.Writer, aggregator *discovery.Aggregator, store prefs.Store, format string) {
	devicesCh := aggregator.Devices(ctx)
	playingCh := aggregator.Playing(ctx)
	prefsCh := store.Data(ctx)

	var (
		devices []device.Device
		playing *device.Device
		stored  prefs.Prefs
	)
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-devicesCh:
			if !ok {
				return
			}
			devices = list
		case p, ok := <-playingCh:
			if !ok {
				return
			}
			playing = p
		case p, ok := <-prefsCh:
			if !ok {
				return
			}
			stored = p
		}

		if format == "table" {
			clearScreen(w)
		}
		_ = displayDevices(w, deviceRows(devices, playing, stored), format)
	}
}
