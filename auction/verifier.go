package auction

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureVerifier validates a signature over a canonical message against a
// claimed address. Implementations are stateless and side-effect-free, and
// fail closed: malformed signatures or addresses are invalid, never an error
// that aborts the caller.
type SignatureVerifier interface {
	Verify(message, signature []byte, claimedAddress string) bool
}

// Secp256k1Verifier verifies 65-byte secp256k1 recovery signatures over the
// keccak-256 digest of the message, matching the recovered public key's
// address against the claimed 0x address.
type Secp256k1Verifier struct{}

func (Secp256k1Verifier) Verify(message, signature []byte, claimedAddress string) bool {
	if len(signature) != ethcrypto.SignatureLength {
		return false
	}
	if !ethcommon.IsHexAddress(claimedAddress) {
		return false
	}

	// Accept both 0/1 and legacy 27/28 recovery ids.
	sig := make([]byte, ethcrypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := ethcrypto.Keccak256(message)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pub) == ethcommon.HexToAddress(claimedAddress)
}
