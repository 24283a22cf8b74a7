package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

var randomRead = rand.Read

// GenerateRandomToken generates a random token of specified length
func GenerateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := randomRead(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateMasterSecret returns a 32-byte hex secret suitable for MASTER_ENCRYPTION_SECRET
func GenerateMasterSecret() (string, error) {
	return GenerateRandomToken(32)
}

// Zero overwrites key material in place
func Zero(b []byte) {
	clear(b)
}
