package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	minDigits = 6
	maxDigits = 10
)

// GenerateCode returns a uniformly random decimal code of the given length.
func GenerateCode(digits int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashCode binds code to its credential with HMAC-SHA256 and returns the hex
// digest. Only this digest is ever persisted.
func HashCode(key []byte, credentialID, code string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(credentialID))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCode recomputes the digest for code and compares it in constant time.
func VerifyCode(key []byte, credentialID, code, digest string) bool {
	computed := HashCode(key, credentialID, code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
