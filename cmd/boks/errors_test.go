package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bluetooth off",
			err:  fmt.Errorf("failed to create BLE device: %w", device.ErrBluetoothOff),
			want: "Bluetooth is turned off",
		},
		{
			name: "timeout",
			err:  fmt.Errorf("%w: AA:BB not ready within 30s", device.ErrTimeout),
			want: "did not respond in time",
		},
		{
			name: "write error wins over its timeout cause",
			err:  &session.WriteError{Characteristic: device.VolumeCharacteristic, Attempts: 5, Err: device.ErrTimeout},
			want: "did not accept the change",
		},
		{
			name: "missing characteristic",
			err:  &device.NotFoundError{Resource: "service", UUIDs: []string{"fff0"}},
			want: "required service",
		},
		{
			name: "connection lost",
			err:  fmt.Errorf("%w: AA:BB", device.ErrConnectionLost),
			want: "connection to the speaker was lost",
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.want)
		})
	}
}
