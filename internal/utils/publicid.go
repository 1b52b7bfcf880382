package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/gosimple/slug"
)

// GeneratePublicID builds the opaque external-facing id for a program:
// the slugified business name plus a short random suffix, so the id is
// shareable in URLs without exposing the internal uuid.
func GeneratePublicID(businessName string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating public id: %w", err)
	}
	base := slug.Make(businessName)
	if base == "" {
		base = "program"
	}
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(buf)), nil
}
