package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit short form",
			input:    "180f",
			expected: "180f",
		},
		{
			name:     "16-bit with 0x prefix",
			input:    "0x180F",
			expected: "180f",
		},
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "00002a19-0000-1000-8000-00805f9b34fb",
			expected: "2a19",
		},
		{
			name:     "Full Bluetooth SIG UUID without dashes",
			input:    "00002a1900001000800000805f9b34fb",
			expected: "2a19",
		},
		{
			name:     "Vendor 128-bit UUID",
			input:    "86C3810E-0010-40D9-A117-26B300768CD6",
			expected: "86c3810e001040d9a11726b300768cd6",
		},
		{
			name:     "UUID with braces",
			input:    "{0000180f-0000-1000-8000-00805f9b34fb}",
			expected: "180f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"0x2A19", "86c3810e-f171-40d9-a117-26b300768cd6"})
	assert.Equal(t, []string{"2a19", "86c3810ef17140d9a11726b300768cd6"}, got)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		lookup   func(string) string
		uuid     string
		expected string
	}{
		{"battery service short", LookupService, "180f", "Battery Service"},
		{"battery service full", LookupService, "0000180f-0000-1000-8000-00805f9b34fb", "Battery Service"},
		{"control service", LookupService, "86c3810e-f171-40d9-a117-26b300768cd6", "PowerUp Control"},
		{"unknown service", LookupService, "ffff", ""},
		{"battery level", LookupCharacteristic, "00002a19-0000-1000-8000-00805f9b34fb", "Battery Level"},
		{"motor", LookupCharacteristic, "86c3810e-0010-40d9-a117-26b300768cd6", "PowerUp Motor"},
		{"rudder", LookupCharacteristic, "86c3810e-0021-40d9-a117-26b300768cd6", "PowerUp Rudder"},
		{"charging", LookupCharacteristic, "86c3810e-0040-40d9-a117-26b300768cd6", "PowerUp Charging State"},
		{"cccd", LookupDescriptor, "2902", "Client Characteristic Configuration"},
		{"cccd full", LookupDescriptor, "00002902-0000-1000-8000-00805f9b34fb", "Client Characteristic Configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.lookup(tt.uuid))
		})
	}
}
