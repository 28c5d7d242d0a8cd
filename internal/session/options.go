package session

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tunes write pacing and acknowledgement handling.
type Options struct {
	// WriteInterval is the minimum spacing between two hardware writes.
	WriteInterval time.Duration `default:"200ms"`

	// AckTimeout bounds the wait for one write acknowledgement.
	AckTimeout time.Duration `default:"200ms"`

	// MaxWriteAttempts caps retries of an unacknowledged write.
	MaxWriteAttempts int `default:"5"`

	// SkipUnchanged drops a write whose payload equals the last one
	// acknowledged for the same characteristic.
	SkipUnchanged bool
}

// DefaultOptions returns Options with every default applied. Callers adjust
// fields afterwards, so an explicit zero is never overwritten.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}
