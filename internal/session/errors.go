package session

import (
	"fmt"

	"github.com/srg/boks/internal/device"
)

// WriteError reports a write that was never acknowledged.
type WriteError struct {
	Characteristic device.CharacteristicID
	Attempts       int
	Err            error // last attempt's failure
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s failed after %d attempts: %v",
		device.CharacteristicName(e.Characteristic), e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
