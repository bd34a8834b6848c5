package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// RecoverableSigSize is the length of a recoverable signature as stored on
// the wire: 32-byte R followed by 32-byte S. Unlike the compact signature
// format ecdsa.SignCompact/RecoverCompact use internally, no header byte is
// stored — the recovery id is not trusted and is instead brute-forced by
// RecoverPubKey, matching the kernel block-signature check's contract.
const RecoverableSigSize = 64

// SignRecoverable produces a 64-byte (R||S) ECDSA signature over a 32-byte
// hash, suitable for public-key recovery via RecoverPubKey. Used for PoS
// block signatures, which (unlike the chain's ordinary Schnorr signatures)
// must support recovering the signer's public key from the coin being
// staked rather than having it supplied alongside the signature.
func SignRecoverable(pk *PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	compact := ecdsa.SignCompact(pk.key, hash, true)
	if len(compact) != 1+RecoverableSigSize {
		return nil, fmt.Errorf("unexpected compact signature length %d", len(compact))
	}
	// Drop the header byte: the recovery id is re-derived by brute force on
	// the verifying side, not trusted from the signer.
	sig := make([]byte, RecoverableSigSize)
	copy(sig, compact[1:])
	return sig, nil
}

// RecoverPubKey attempts public-key recovery for each of the 8 candidate
// (recid, compressed) pairs, in the order recid outer / compressed inner,
// and returns every public key that recovers without error for the caller
// to test against an expected address. Recovery failures for individual
// candidates are not errors; an empty result means none of the 8 candidates
// parsed to a valid point on the curve, not that the signature is invalid.
func RecoverPubKey(hash, sig []byte) []RecoveredKey {
	if len(sig) != RecoverableSigSize {
		return nil
	}
	var out []RecoveredKey
	for recid := byte(0); recid < 4; recid++ {
		for _, compressed := range [2]bool{false, true} {
			header := byte(27) + recid
			if compressed {
				header += 4
			}
			compact := make([]byte, 1+RecoverableSigSize)
			compact[0] = header
			copy(compact[1:], sig)

			pubKey, wasCompressed, err := ecdsa.RecoverCompact(compact, hash)
			if err != nil {
				continue
			}
			out = append(out, RecoveredKey{
				RecID:      recid,
				Compressed: wasCompressed,
				PubKey:     serializePubKey(pubKey, wasCompressed),
			})
		}
	}
	return out
}

// RecoveredKey is one successfully recovered candidate public key.
type RecoveredKey struct {
	RecID      byte
	Compressed bool
	PubKey     []byte
}

func serializePubKey(pub *secp256k1.PublicKey, compressed bool) []byte {
	if compressed {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}
