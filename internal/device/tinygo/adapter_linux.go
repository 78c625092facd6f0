package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return bluetooth.NewAdapter(id), nil
	}
	return bluetooth.DefaultAdapter, nil
}

func parseAddress(address string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("failed to parse MAC address %q: %w", address, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
