package configsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/metrics"
)

// Field names, in the order they are applied.
const (
	FieldPin          = "pin"
	FieldVolume       = "volume"
	FieldSoundProfile = "sound_profile"
	FieldChannel      = "channel"
	FieldTeamUpMode   = "team_up_mode"
)

// Apply outcomes recorded per field.
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Sender writes one characteristic and waits for the acknowledgement.
// *session.Session implements it.
type Sender interface {
	Send(ctx context.Context, id device.CharacteristicID, payload []byte) error
}

// step is one planned field write.
type step struct {
	id      device.CharacteristicID
	value   any
	payload []byte
	current func() bool
	commit  func()
	forget  func()
}

// Applier pushes configs to one speaker, sending only the fields that
// differ from what it last confirmed.
type Applier struct {
	device  device.Device
	cache   Cache
	logger  *logrus.Entry
	metrics *metrics.Collector
}

func NewApplier(d device.Device, logger *logrus.Logger, m *metrics.Collector) *Applier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Applier{
		device:  d,
		logger:  logger.WithField("device", d.DebugName()),
		metrics: m,
	}
}

// Cache exposes the applied-value cache for inspection.
func (a *Applier) Cache() *Cache { return &a.cache }

// Reset forgets everything, forcing the next Apply to send every field.
func (a *Applier) Reset() { a.cache.Reset() }

// Relock forces the next Apply to send the pin unlock again without
// resending unchanged fields. Call it at the start of every connection.
func (a *Applier) Relock() { a.cache.Relock() }

// Apply sends the fields of cfg that differ from the cache, in the fixed
// order pin, volume, sound profile, channel, team-up mode. A pin that
// differs from the cached one resets the cache first so every field is
// resent after the unlock.
//
// A field whose write fails or is cancelled is forgotten so the next Apply
// retries it. Write failures do not stop later fields; cancellation and a
// closed or disconnected session do.
func (a *Applier) Apply(ctx context.Context, s Sender, cfg device.Config) error {
	a.logger.WithField("config", fmt.Sprintf("%+v", cfg)).Info("Apply config")

	if !a.cache.pin.matches(cfg.Pin) {
		a.logger.WithField("pin", cfg.Pin.IsSet()).Info("Pin changed, resending everything")
		a.cache.Reset()
		if !cfg.Pin.IsSet() {
			a.cache.pin.set(device.NoPin)
		}
	}

	var errs []error
	plan := a.plan(cfg)
	for pair := plan.Oldest(); pair != nil; pair = pair.Next() {
		name, st := pair.Key, pair.Value
		logger := a.logger.WithFields(logrus.Fields{
			"field": name,
			"value": st.value,
		})

		if st.current() {
			logger.Debug("Skip unchanged field")
			a.metrics.Applied(name, ResultSkipped)
			continue
		}

		logger.Debug("Apply field")
		if err := s.Send(ctx, st.id, st.payload); err != nil {
			st.forget()
			a.metrics.Applied(name, ResultFailed)
			logger.WithError(err).Warn("Apply failed")

			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if aborts(ctx, err) {
				return errors.Join(errs...)
			}
			continue
		}
		st.commit()
		a.metrics.Applied(name, ResultSent)
	}
	return errors.Join(errs...)
}

func (a *Applier) plan(cfg device.Config) *orderedmap.OrderedMap[string, step] {
	c := &a.cache
	plan := orderedmap.New[string, step]()

	if cfg.Pin.IsSet() {
		plan.Set(FieldPin, step{
			id:      device.PinCharacteristic,
			value:   "****",
			payload: device.EncodePinUnlock(cfg.Pin),
			current: func() bool { return c.unlocked && c.pin.matches(cfg.Pin) },
			commit: func() {
				c.pin.set(cfg.Pin)
				c.unlocked = true
			},
			forget: func() {
				c.pin.forget()
				c.unlocked = false
			},
		})
	}
	plan.Set(FieldVolume, step{
		id:      device.VolumeCharacteristic,
		value:   cfg.Volume,
		payload: device.EncodeVolume(cfg.Volume),
		current: func() bool { return c.volume.matches(cfg.Volume) },
		commit:  func() { c.volume.set(cfg.Volume) },
		forget:  c.volume.forget,
	})
	plan.Set(FieldSoundProfile, step{
		id:      device.SoundProfileCharacteristic,
		value:   cfg.SoundProfile,
		payload: cfg.SoundProfile.Bytes(),
		current: func() bool { return c.soundProfile.matches(cfg.SoundProfile) },
		commit:  func() { c.soundProfile.set(cfg.SoundProfile) },
		forget:  c.soundProfile.forget,
	})
	plan.Set(FieldChannel, step{
		id:      device.ChannelCharacteristic,
		value:   cfg.Channel,
		payload: cfg.Channel.Bytes(),
		current: func() bool { return c.channel.matches(cfg.Channel) },
		commit:  func() { c.channel.set(cfg.Channel) },
		forget:  c.channel.forget,
	})
	plan.Set(FieldTeamUpMode, step{
		id:      device.TeamUpModeCharacteristic,
		value:   cfg.TeamUpMode,
		payload: cfg.TeamUpMode.Bytes(),
		current: func() bool { return c.teamUpMode.matches(cfg.TeamUpMode) },
		commit:  func() { c.teamUpMode.set(cfg.TeamUpMode) },
		forget:  c.teamUpMode.forget,
	})
	return plan
}

func aborts(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, device.ErrClosed) ||
		errors.Is(err, device.ErrNotConnected) ||
		errors.Is(err, device.ErrConnectionLost)
}
