// Package bledb normalizes GATT UUIDs and names the services, characteristics
// and descriptors a PowerUp controller exposes.
package bledb

import (
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) once dashes are removed.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800":                             "Generic Access",
	"1801":                             "Generic Attribute",
	"180a":                             "Device Information",
	"180f":                             "Battery Service",
	"86c3810ef17140d9a11726b300768cd6": "PowerUp Control",
}

var characteristics = map[string]string{
	"2a00":                             "Device Name",
	"2a01":                             "Appearance",
	"2a04":                             "Peripheral Preferred Connection Parameters",
	"2a05":                             "Service Changed",
	"2a19":                             "Battery Level",
	"2a24":                             "Model Number String",
	"2a25":                             "Serial Number String",
	"2a26":                             "Firmware Revision String",
	"2a27":                             "Hardware Revision String",
	"2a29":                             "Manufacturer Name String",
	"86c3810e001040d9a11726b300768cd6": "PowerUp Motor",
	"86c3810e002140d9a11726b300768cd6": "PowerUp Rudder",
	"86c3810e004040d9a11726b300768cd6": "PowerUp Charging State",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// NormalizeUUID converts a UUID string to the internal format: lowercase, no
// dashes, braces or 0x prefix. UUIDs in the SIG base range collapse to their
// 16-bit short form.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.Trim(s, "{}")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes every UUID in the slice.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the known name of a service, or "".
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic, or "".
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the known name of a descriptor, or "".
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
