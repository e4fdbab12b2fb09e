// Package access validates wallets, signed challenges and token ownership
// for gated content.
package access

import (
	"strings"

	"golang.org/x/crypto/sha3"
)

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ChecksumAddress renders addr in EIP-55 mixed case. The input must already
// be a 0x-prefixed 40-digit hex string.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	hash := keccak256([]byte(lower))
	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// ValidAddress accepts 0x-prefixed 40-digit hex addresses. Mixed-case input
// must carry a correct EIP-55 checksum; uniform case is accepted as-is.
func ValidAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	hex := addr[2:]
	if !isHex(hex) {
		return false
	}
	if hex == strings.ToLower(hex) || hex == strings.ToUpper(hex) {
		return true
	}
	return ChecksumAddress(addr) == addr
}

// NormalizeAddress lowercases a valid address for storage and comparison.
func NormalizeAddress(addr string) string { return strings.ToLower(addr) }
