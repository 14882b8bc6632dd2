package domain

import "crypto/rand"

// CoinFlip is a fair random bit. It reports true if crypto/rand fails.
func CoinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return true
	}
	return b[0]&1 == 1
}
