package access

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/tokenbay/storefront/internal/apperr"
)

// SignatureVerifier checks that a signed challenge belongs to a wallet.
type SignatureVerifier interface {
	VerifyPersonalSign(address, message, sigHex string) error
}

// Verifier implements EIP-191 personal-sign verification: the message is
// prefixed and Keccak-hashed, the public key recovered from the compact
// signature, and the derived address compared with the claimed one.
type Verifier struct{}

// personalDigest hashes msg the way wallet personal_sign does.
func personalDigest(msg string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return keccak256([]byte(prefixed))
}

func (Verifier) VerifyPersonalSign(address, message, sigHex string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return apperr.Signaturef("signature is not valid hex")
	}
	if len(sig) != 65 {
		return apperr.Signaturef("signature must be 65 bytes, got %d", len(sig))
	}

	// Wallets produce r||s||v; RecoverCompact wants the recovery byte first.
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 3 {
		return apperr.Signaturef("invalid recovery id %d", sig[64])
	}
	compact := make([]byte, 65)
	compact[0] = v + 27
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, personalDigest(message))
	if err != nil {
		return apperr.Signaturef("signature recovery failed: %v", err)
	}

	recovered := AddressFromPubKey(pub.SerializeUncompressed())
	if !strings.EqualFold(recovered, address) {
		return apperr.Signaturef("signature was made by %s, not %s", recovered, address)
	}
	return nil
}

// AddressFromPubKey derives the wallet address from an uncompressed
// secp256k1 public key (0x04 || X || Y).
func AddressFromPubKey(uncompressed []byte) string {
	hash := keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(hash[12:])
}
