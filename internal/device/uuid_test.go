package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameUUID(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"short and full SIG form", "180f", "0000180f-0000-1000-8000-00805f9b34fb", true},
		{"case and 0x prefix", "0x2A19", "2a19", true},
		{"vendor UUID with and without dashes", "86c3810e-f171-40d9-a117-26b300768cd6", "86C3810EF17140D9A11726B300768CD6", true},
		{"different vendor characteristics", "86c3810e-0010-40d9-a117-26b300768cd6", "86c3810e-0021-40d9-a117-26b300768cd6", false},
		{"SIG short vs vendor", "2a19", "86c3810e-0040-40d9-a117-26b300768cd6", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, SameUUID(tt.a, tt.b))
		})
	}
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "86c3810e", ShortenUUID("86c3810ef17140d9a11726b300768cd6"))
	assert.Equal(t, "180f", ShortenUUID("180f"), "short UUIDs MUST be returned unchanged")
}

func TestValidateUUID(t *testing.T) {
	t.Run("normalizes valid UUIDs", func(t *testing.T) {
		got, err := ValidateUUID("0x180F", "86c3810e-f171-40d9-a117-26b300768cd6", "0000180a-0000-1000-8000-00805f9b34fb")
		require.NoError(t, err)
		assert.Equal(t, []string{"180f", "86c3810ef17140d9a11726b300768cd6", "180a"}, got)
	})

	t.Run("requires at least one UUID", func(t *testing.T) {
		_, err := ValidateUUID()
		require.Error(t, err)
	})

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "cannot be empty"},
		{"not hex", "zz0f", "invalid UUID format"},
		{"odd length", "180f0", "invalid UUID format"},
		{"too long", "0000290200001000800000805f9b34fb00", "invalid UUID format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUUID("180f", tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "index 1", "error MUST name the offending position")
		})
	}
}
