package directory

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// NewSetupToken generates a one-time account-setup token. The raw token
// is delivered to the user once; only the bcrypt hash is stored.
func NewSetupToken() (raw string, hash string, err error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("directory: failed to generate setup token: %w", err)
	}

	raw = hex.EncodeToString(b)

	bytes, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	return raw, string(bytes), nil
}

// VerifySetupToken compares a presented token with the stored hash.
func VerifySetupToken(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
