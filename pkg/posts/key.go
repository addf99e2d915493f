package posts

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DeriveKey maps a raw post id to the short storage key used for idempotent
// upserts. Surrounding whitespace is ignored.
func DeriveKey(rawID string) (string, error) {
	id := strings.TrimSpace(rawID)
	if id == "" {
		return "", ErrInvalidID
	}
	return encodeBase62(xxhash.Sum64String(id)), nil
}

func encodeBase62(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [11]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = base62Alphabet[v%62]
		v /= 62
	}
	return string(buf[i:])
}
