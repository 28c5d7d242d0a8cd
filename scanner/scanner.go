// Package scanner runs a bounded discovery pass for SOUNDBOKS speakers.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/platform"
	"github.com/srg/boks/internal/stream"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or seen again
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device device.Device
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration time.Duration
	// AllDevices keeps peers whose name does not identify a speaker.
	AllDevices bool
	AllowList  []string
	BlockList  []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// Scanner handles one discovery pass at a time
type Scanner struct {
	source  platform.Scanner
	devices *hashmap.Map[string, device.Device]
	events  *stream.RingChannel[DeviceEvent]
	logger  *logrus.Logger
}

// NewScanner creates a scanner over the platform advertisement source
func NewScanner(source platform.Scanner, logger *logrus.Logger) (*Scanner, error) {
	if source == nil {
		return nil, fmt.Errorf("scanner: %w: no advertisement source", device.ErrUnsupported)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		source: source,
		events: stream.NewRingChannel[DeviceEvent](100),
		logger: logger,
	}, nil
}

// Scan collects speakers until the duration elapses or ctx is done. The
// result is sorted by name, then address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.Device, error) {
	s.devices = hashmap.New[string, device.Device]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	err := s.source.Scan(scanCtx, func(p device.Peer) { s.handlePeer(p, opts) })
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	devices := make([]device.Device, 0, s.devices.Len())
	s.devices.Range(func(_ string, value device.Device) bool {
		devices = append(devices, value)
		return true
	})
	slices.SortFunc(devices, func(a, b device.Device) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	return devices, nil
}

// handlePeer records a new device or refreshes the name of a known one
func (s *Scanner) handlePeer(p device.Peer, opts *ScanOptions) {
	if !shouldIncludePeer(p, opts) {
		return
	}

	dev := p.Device()
	_, existing := s.devices.Get(p.Address)
	s.devices.Set(p.Address, dev)

	event := DeviceEvent{Device: dev}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name,
			"address": dev.Address,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.Send(event)
}

// shouldIncludePeer applies the speaker, allow and block filters
func shouldIncludePeer(p device.Peer, opts *ScanOptions) bool {
	if !opts.AllDevices && !p.IsSoundboks() {
		return false
	}

	match := func(list []string) bool {
		return slices.ContainsFunc(list, func(a string) bool { return strings.EqualFold(a, p.Address) })
	}
	if match(opts.BlockList) {
		return false
	}
	if len(opts.AllowList) > 0 && !match(opts.AllowList) {
		return false
	}
	return true
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
