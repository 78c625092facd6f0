package tinygo

import (
	"fmt"
	"strings"

	"github.com/srg/powerup/internal/device"
)

// NormalizeError maps BlueZ / D-Bus failures onto device sentinels.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "dbus") && strings.HasSuffix(msg, "no such file or directory"),
		strings.Contains(msg, "The name org.bluez was not provided"),
		strings.Contains(msg, "org.bluez.Error.NotReady"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case strings.Contains(msg, "org.bluez.Error.NotConnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return device.NormalizeError(err)
	}
}
