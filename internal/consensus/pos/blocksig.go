package pos

import (
	"bytes"
	"fmt"

	"github.com/kgxchain/kgxnode/pkg/block"
	"github.com/kgxchain/kgxnode/pkg/crypto"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// CheckRecoveredPubKeyFromBlockSignature recovers the block signer's
// public key from the header hash and signature, then checks it against
// the staked coin's locking script. It tries all 8 (recid, compressed)
// candidates — recid outer, compressed inner — and accepts the first one
// whose recovered key's address matches the coin's key-id; a node must
// never require one specific (recid, compressed) pair.
func CheckRecoveredPubKeyFromBlockSignature(tip *BlockIndex, header *block.Header, view CoinView) (bool, error) {
	coinPrev, err := view.Get(header.PrevoutStake)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCoinLookupIO, err)
	}
	if coinPrev == nil {
		coinPrev, err = view.GetSpentCoinFromMainChain(tip, header.PrevoutStake)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrCoinLookupIO, err)
		}
		if coinPrev == nil {
			return false, ErrMissingStakePrevout
		}
	}

	if len(header.BlockSig) == 0 {
		return false, nil
	}

	hash := header.HashWithoutSig()
	candidates := crypto.RecoverPubKey(hash[:], header.BlockSig)

	for _, cand := range candidates {
		if keyMatchesScript(cand.PubKey, coinPrev.Script) {
			return true, nil
		}
	}
	return false, nil
}

// keyMatchesScript reports whether a recovered public key corresponds to
// the key encoded in a P2PK, Stake or P2PKH script. Any other script shape
// never matches.
func keyMatchesScript(pubKey []byte, script types.Script) bool {
	switch script.Type {
	case types.ScriptTypeP2PK, types.ScriptTypeStake:
		return bytes.Equal(pubKey, script.Data)
	case types.ScriptTypeP2PKH:
		addr := crypto.AddressFromPubKey(pubKey)
		return bytes.Equal(addr[:], script.Data)
	default:
		return false
	}
}
