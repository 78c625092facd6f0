//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/powerup/internal/device"
)

func newDevice(_ Options) (ble.Device, error) {
	return nil, fmt.Errorf("go-ble on %s: %w", runtime.GOOS, device.ErrUnsupported)
}
