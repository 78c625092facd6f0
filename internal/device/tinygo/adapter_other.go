//go:build !linux && !darwin

package tinygo

import (
	"fmt"
	"runtime"

	"github.com/srg/powerup/internal/device"
	"tinygo.org/x/bluetooth"
)

func newAdapter(_ string) (*bluetooth.Adapter, error) {
	return nil, fmt.Errorf("tinygo transport on %s: %w", runtime.GOOS, device.ErrUnsupported)
}

func parseAddress(address string) (bluetooth.Address, error) {
	return bluetooth.Address{}, fmt.Errorf("parse %q: %w", address, device.ErrUnsupported)
}
