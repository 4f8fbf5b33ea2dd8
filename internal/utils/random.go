package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var promoWords = []string{
	"SWIFT", "BRAVE", "GOLD", "IRON", "SILVER",
	"STORM", "FROST", "SOLAR", "LUNAR", "NOVA",
	"FALCON", "TIGER", "WOLF", "EAGLE", "LYNX",
	"ORCA", "RAVEN", "COMET", "PULSE", "BOLT",
}

// GeneratePromoCode creates a code in the format "WORD" + 4 random digits,
// e.g. "FALCON4821"
func GeneratePromoCode() (string, error) {
	wordIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(promoWords))))
	if err != nil {
		return "", fmt.Errorf("failed to generate random word: %w", err)
	}

	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}

	return fmt.Sprintf("%s%04d", promoWords[wordIdx.Int64()], suffix.Int64()), nil
}

// SecureFloat64 returns a uniformly distributed float in [0, 1) from crypto/rand
func SecureFloat64() (float64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0, fmt.Errorf("failed to read random number: %w", err)
	}
	return float64(n.Int64()) / (1 << 53), nil
}
