// Package device defines the transport-neutral BLE central API the PowerUp
// session is written against.
//
// A Transport scans for advertisements and dials peripherals; a Link is one
// open GATT connection with its discovered profile. Concrete transports live
// in the goble (github.com/go-ble/ble) and tinygo (tinygo.org/x/bluetooth)
// sub-packages. Errors returned by transports are normalized onto the
// sentinels declared here so callers can match them with errors.Is.
package device
