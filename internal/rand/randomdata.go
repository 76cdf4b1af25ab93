// Package rand generates random test data
package rand

import (
	"fmt"
	"math/rand"
)

const letters = "abcdefghijklmnopqrstuvwxyz0123456789"

// Bytes returns a random slice of bytes
func Bytes(n int) []byte {
	buf := make([]byte, n)
	for i := 0; i < n; i += 8 {
		v := rand.Uint64()
		for j := i; j < i+8 && j < n; j++ {
			buf[j] = byte(v)
			v >>= 8
		}
	}
	return buf
}

// LetterString returns a random string picked in the [0-9]|[a-z] range
func LetterString(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = letters[rand.Intn(len(letters))]
	}
	return string(buf)
}

// Revision returns a well-formed random revision code within some year
func Revision(year int) string {
	return fmt.Sprintf("%04d-%02d-%02d:%03d", year, 1+rand.Intn(12), 1+rand.Intn(28), rand.Intn(1000))
}
