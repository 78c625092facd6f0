package tinygo

import (
	"fmt"

	"github.com/srg/powerup/internal/device"
	"tinygo.org/x/bluetooth"
)

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, fmt.Errorf("selecting adapter %q: %w", id, device.ErrUnsupported)
	}
	return bluetooth.DefaultAdapter, nil
}

// On macOS peripherals are addressed by CoreBluetooth UUIDs, not MACs.
func parseAddress(address string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("failed to parse peripheral UUID %q: %w", address, err)
	}
	return bluetooth.Address{UUID: uuid}, nil
}
