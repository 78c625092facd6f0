package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/powerup/internal/device"
)

// NewProperties maps go-ble characteristic property flags onto device.Property.
func NewProperties(p ble.Property) device.Property {
	var props device.Property
	if p&ble.CharBroadcast != 0 {
		props |= device.PropBroadcast
	}
	if p&ble.CharRead != 0 {
		props |= device.PropRead
	}
	if p&ble.CharWriteNR != 0 {
		props |= device.PropWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		props |= device.PropWrite
	}
	if p&ble.CharNotify != 0 {
		props |= device.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		props |= device.PropIndicate
	}
	return props
}
