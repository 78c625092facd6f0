package device

import (
	"fmt"

	"github.com/srg/powerup/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes,
// SIG base UUIDs shortened to 16 bits).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// SameUUID reports whether two UUID strings name the same attribute.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID checks that UUID strings are non-empty and well-formed and
// returns them normalized.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if !isHex(normalized) || (len(normalized) != 4 && len(normalized) != 8 && len(normalized) != 32) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
