package main

import (
	"errors"
	"fmt"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/session"
)

// FormatUserError turns engine errors into one actionable line.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	var writeErr *session.WriteError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("not supported on this host: %v", err)
	case errors.As(err, &writeErr):
		return fmt.Sprintf("speaker did not accept the change: %v", err)
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("speaker did not respond in time (is it on and in range?): %v", err)
	case errors.Is(err, device.ErrConnectionLost):
		return fmt.Sprintf("connection to the speaker was lost: %v", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("speaker does not expose the required %s; is it a SOUNDBOKS? (%v)", notFound.Resource, err)
	}
	return err.Error()
}
