package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeUUID converts a 128-bit UUID string to canonical form
// (lowercase, dashed). Input may be upper case or lack dashes.
func NormalizeUUID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return id.String(), nil
}

// MustNormalizeUUID is NormalizeUUID for compile-time constants.
func MustNormalizeUUID(s string) string {
	n, err := NormalizeUUID(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
