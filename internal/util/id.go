package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// NewToken returns 32 random bytes encoded as unpadded base64url.
func NewToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// IsUUID reports whether value parses as a uuid. Path parameters are checked
// with it before they reach a uuid-typed column.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
