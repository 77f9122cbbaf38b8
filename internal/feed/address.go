package feed

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// validateAddress checks that addr is a base58-encoded 32-byte key, the form
// every program ID and account address must take.
func validateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode base58 address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q: expected 32 bytes, got %d", addr, len(raw))
	}
	return nil
}

// isOnCurve reports whether a 32-byte key lies on the ed25519 curve.
// Program-derived addresses are off-curve; wallet keys are on-curve.
func isOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// classifyAddress returns "wallet" or "pda" for logging purposes.
func classifyAddress(addr string) string {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return "invalid"
	}
	if isOnCurve(raw) {
		return "wallet"
	}
	return "pda"
}
