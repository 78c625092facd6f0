package goble

import (
	"fmt"
	"strings"

	"github.com/srg/powerup/internal/device"
)

// NormalizeError maps known go-ble error strings to the device sentinels.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "central manager has invalid state"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	default:
		return device.NormalizeError(err)
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
