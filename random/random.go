package random

import (
	"math/rand/v2"
)

const charset = "0123456789abcdefghijklmnopqrstuvwxyz"

// String returns a lowercase alphanumeric string safe for object names.
func String(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}
