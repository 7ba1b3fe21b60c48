// Package hasher issues API tokens and checks them against their bcrypt hash.
// Only the hash is kept in configuration.
package hasher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinTokenLength is the smallest number of random bytes GenerateToken accepts.
const MinTokenLength = 16

var ErrShortToken = errors.New("hasher: token length below minimum")

func GenerateToken(length int) (string, error) {
	if length < MinTokenLength {
		return "", ErrShortToken
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(hash), err
}

// TokenMatches reports whether token hashes to hash. An empty hash never matches.
func TokenMatches(token, hash string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
