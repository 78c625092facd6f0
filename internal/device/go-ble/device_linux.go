package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 20 * time.Second

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning, needed for scan response names
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all
}

func newDevice(opts Options) (ble.Device, error) {
	return linux.NewDevice(
		ble.OptDeviceID(opts.AdapterID),
		ble.OptDialerTimeout(bleTimeout),
		ble.OptListenerTimeout(bleTimeout),
		ble.OptScanParams(scanParams),
	)
}
