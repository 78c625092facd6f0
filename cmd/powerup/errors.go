package main

import (
	"errors"
	"fmt"

	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/pkg/powerup"
)

// Command-level errors
var (
	// ErrDeviceNotFound means no PowerUp with the requested name could be
	// connected within the scan timeout.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns library errors into a single readable line.
func FormatUserError(err error) string {
	var rerr *powerup.RangeError
	switch {
	case errors.As(err, &rerr):
		return rerr.Error()
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, ErrDeviceNotFound):
		return fmt.Sprintf("%v (is the controller switched on and in range?)", err)
	case errors.Is(err, ErrConnectionLost):
		return "connection to the controller was lost"
	case errors.Is(err, device.ErrNotConnected):
		return "the controller is not connected"
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("timed out: %v", err)
	default:
		return err.Error()
	}
}
