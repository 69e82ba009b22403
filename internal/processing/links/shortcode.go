package links

import (
	"crypto/rand"
	"regexp"
)

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type CryptoCodeGenerator struct{}

func NewCryptoCodeGenerator() *CryptoCodeGenerator { return &CryptoCodeGenerator{} }

func (g *CryptoCodeGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = 6
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, length)
	for i := range buf {
		out[i] = base62Alphabet[int(buf[i])%len(base62Alphabet)]
	}

	return string(out), nil
}

// ValidateCustomCode reports whether a user-supplied code is acceptable:
// 1-64 chars drawn from letters, digits, hyphen, and underscore.
func ValidateCustomCode(code string) bool {
	if len(code) == 0 || len(code) > 64 {
		return false
	}
	return customCodePattern.MatchString(code)
}
