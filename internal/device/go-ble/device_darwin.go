package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDevice(_ Options) (ble.Device, error) {
	return darwin.NewDevice()
}
