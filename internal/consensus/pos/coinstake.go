package pos

import (
	"bytes"
	"fmt"

	"github.com/kgxchain/kgxnode/pkg/crypto"
	"github.com/kgxchain/kgxnode/pkg/tx"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// ProofResult pairs a kernel's proof hash with its KernelResult.
// CheckProofOfStake does not return it; it returns the KernelResult alone.
type ProofResult struct {
	HashProof types.Hash
	Target    KernelResult
}

// CheckProofOfStake runs the full block-context coinstake check, steps in
// the exact order the consensus contract requires (later steps rely on
// earlier successes): coinstake shape, prevout lookup, super-staker
// membership, maturity, ancestor lookup, signature, kernel.
func CheckProofOfStake(
	parent *BlockIndex,
	transaction *tx.Transaction,
	nBits uint32,
	nTimeBlock uint32,
	view CoinView,
	superStakers *SuperStakerSet,
	coinbaseMaturity uint64,
) (KernelResult, error) {
	if !transaction.IsCoinStake() {
		return KernelResult{}, ErrNotCoinstake
	}

	txin := transaction.Inputs[0]
	coinPrev, blockFrom, isSuperStaker, err := lookupStakeContext(parent, txin.PrevOut, view, superStakers, coinbaseMaturity)
	if err != nil {
		return KernelResult{}, err
	}

	if err := verifyCoinstakeSignature(transaction, coinPrev.Script); err != nil {
		return KernelResult{}, ErrBadSignature
	}

	result, err := CheckStakeKernelHash(parent, nBits, blockFrom.Time, coinPrev.Value, txin.PrevOut, nTimeBlock, isSuperStaker)
	if err != nil {
		return KernelResult{}, err
	}
	if !result.Pass {
		return result, ErrKernelFailed
	}

	return result, nil
}

// lookupStakeContext resolves the shared prerequisites every kernel check
// needs: the coin being staked, its source block, and whether it belongs to
// a super-staker exempt from the maturity rule. Shared between
// CheckProofOfStake (which also has the coinstake tx to verify) and the
// header-only check an Engine.VerifyHeader call can run before a block's
// transactions are available.
func lookupStakeContext(
	parent *BlockIndex,
	outpoint types.Outpoint,
	view CoinView,
	superStakers *SuperStakerSet,
	coinbaseMaturity uint64,
) (coin *Coin, blockFrom *BlockIndex, isSuperStaker bool, err error) {
	coinPrev, err := view.Get(outpoint)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: %v", ErrCoinLookupIO, err)
	}
	if coinPrev == nil {
		return nil, nil, false, ErrMissingStakePrevout
	}

	isSuperStaker = superStakers.Contains(coinPrev.Script)

	if !isSuperStaker && parent != nil && parent.Height+1-coinPrev.Height < coinbaseMaturity {
		return nil, nil, false, ErrImmature
	}

	blockFrom = parent.AncestorAtHeight(coinPrev.Height)
	if blockFrom == nil {
		return nil, nil, false, ErrMissingAncestor
	}

	return coinPrev, blockFrom, isSuperStaker, nil
}

// verifyCoinstakeSignature checks the coinstake's first input against the
// staked coin's locking script. Only P2PKH, P2PK and Stake scripts carry a
// pubkey the input's signature can be verified against directly; the
// transaction-level signature check (tx.VerifySignatures) already confirms
// the input's own (signature, pubkey) pair is internally consistent, so
// this only needs to confirm that pair matches the coin being spent.
func verifyCoinstakeSignature(transaction *tx.Transaction, script types.Script) error {
	txin := transaction.Inputs[0]
	if len(txin.Signature) == 0 || len(txin.PubKey) == 0 {
		return fmt.Errorf("coinstake input missing signature or pubkey")
	}
	switch script.Type {
	case types.ScriptTypeP2PKH:
		addr := crypto.AddressFromPubKey(txin.PubKey)
		if !bytes.Equal(addr[:], script.Data) {
			return fmt.Errorf("pubkey does not match staked P2PKH script")
		}
	case types.ScriptTypeStake, types.ScriptTypeP2PK:
		if !bytes.Equal(txin.PubKey, script.Data) {
			return fmt.Errorf("pubkey does not match staked script")
		}
	default:
		return fmt.Errorf("unsupported staked script type %s", script.Type)
	}

	hash := transaction.Hash()
	if !crypto.VerifySignature(hash[:], txin.Signature, txin.PubKey) {
		return fmt.Errorf("invalid coinstake signature")
	}
	return nil
}

// CheckBlockInputPubKeyMatchesOutputPubKey lets a block staked from a
// hash-of-pubkey UTXO emit its reward to a raw-pubkey UTXO for the same
// underlying key (or vice versa is explicitly rejected — only P2PKH-in,
// P2PK-out is allowed besides an exact script match).
func CheckBlockInputPubKeyMatchesOutputPubKey(coinIn Coin, coinstake *tx.Transaction) error {
	if len(coinstake.Outputs) < 2 {
		return ErrMalformedCoinstake
	}
	scriptIn := coinIn.Script
	scriptOut := coinstake.Outputs[1].Script

	if scriptIn.Type == scriptOut.Type && bytes.Equal(scriptIn.Data, scriptOut.Data) {
		return nil
	}

	if scriptIn.Type != types.ScriptTypeP2PKH || scriptOut.Type != types.ScriptTypeP2PK {
		return ErrInputOutputKeyMismatch
	}

	outAddr := crypto.AddressFromPubKey(scriptOut.Data)
	if !bytes.Equal(outAddr[:], scriptIn.Data) {
		return ErrInputOutputKeyMismatch
	}
	return nil
}
