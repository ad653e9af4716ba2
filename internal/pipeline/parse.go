package pipeline

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParseKey converts a base58 string into a public key.
func ParseKey(input string) (solana.PublicKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return solana.PublicKey{}, fmt.Errorf("empty key")
	}
	key, err := solana.PublicKeyFromBase58(input)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid key %q: %w", input, err)
	}
	return key, nil
}

// ParseOptionalKey is ParseKey with empty input mapping to the zero key.
func ParseOptionalKey(input string) (solana.PublicKey, error) {
	if strings.TrimSpace(input) == "" {
		return solana.PublicKey{}, nil
	}
	return ParseKey(input)
}

// ParseTarget reads an AVS target from its two keys. Both empty means no
// target.
func ParseTarget(avs, positionMint string) (AVSTarget, error) {
	a, err := ParseOptionalKey(avs)
	if err != nil {
		return AVSTarget{}, fmt.Errorf("avs: %w", err)
	}
	m, err := ParseOptionalKey(positionMint)
	if err != nil {
		return AVSTarget{}, fmt.Errorf("position mint: %w", err)
	}
	return AVSTarget{AVS: a, PositionMint: m}, nil
}
