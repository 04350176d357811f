package tool

import (
	"encoding/hex"
	"strings"
)

// Casper account public keys are a one byte algorithm tag followed by the
// raw key: 01 + 32 bytes for ed25519, 02 + 33 bytes for secp256k1.
const (
	ed25519Tag      = "01"
	secp256k1Tag    = "02"
	ed25519KeyLen   = 2 + 64
	secp256k1KeyLen = 2 + 66
)

// IsCasperPublicKey reports whether s is a hex encoded Casper public key.
func IsCasperPublicKey(s string) bool {
	switch {
	case strings.HasPrefix(s, ed25519Tag) && len(s) == ed25519KeyLen:
	case strings.HasPrefix(s, secp256k1Tag) && len(s) == secp256k1KeyLen:
	default:
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
