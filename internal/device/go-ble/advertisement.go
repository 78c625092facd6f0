package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/powerup/internal/device"
)

// NewAdvertisement converts a go-ble advertising report into a device.Advertisement.
func NewAdvertisement(adv ble.Advertisement) device.Advertisement {
	services := adv.Services()
	uuids := make([]string, 0, len(services))
	for _, svc := range services {
		uuids = append(uuids, device.NormalizeUUID(svc.String()))
	}

	var addr string
	if a := adv.Addr(); a != nil {
		addr = a.String()
	}

	return device.Advertisement{
		Address:          addr,
		LocalName:        adv.LocalName(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		Services:         uuids,
		ManufacturerData: adv.ManufacturerData(),
	}
}
