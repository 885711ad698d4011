// Package crypto provides cryptographic utilities for Hoaxify.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ActivationTokenLength is the exact length of an activation token in characters.
const ActivationTokenLength = 16

// GenerateActivationToken returns a random lowercase hex token of exactly
// ActivationTokenLength characters. The token is cut from a longer hex string,
// it is not the hex encoding of ActivationTokenLength bytes.
func GenerateActivationToken() (string, error) {
	return generateHexToken(ActivationTokenLength)
}

// generateHexToken hex-encodes enough random bytes to cover length characters
// and truncates the result.
func generateHexToken(length int) (string, error) {
	randomBytes := make([]byte, (length+1)/2+4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(randomBytes)[:length], nil
}
