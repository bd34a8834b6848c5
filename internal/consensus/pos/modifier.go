package pos

import "github.com/kgxchain/kgxnode/pkg/types"

// ComputeModifier advances the stake modifier chain.
//
// At genesis (parent == nil) the modifier is zero. Otherwise it is
// H(kernelHash || parent.Modifier), with both 32-byte values concatenated
// in that order. There are no retries or error conditions beyond malformed
// inputs, which the type system rules out.
func ComputeModifier(parent *BlockIndex, kernelHash types.Hash) types.Hash {
	if parent == nil {
		return types.Hash{}
	}
	var buf [64]byte
	copy(buf[:32], kernelHash[:])
	copy(buf[32:], parent.Modifier[:])
	return doubleSHA256(buf[:])
}

// ModifierForAcceptedBlock re-derives the kernel hash proof for a header
// already known to have passed VerifyHeader, and folds it onto the parent's
// modifier. Called once per accepted block so the result can be persisted
// (BlockStore.PutModifier) instead of replayed from genesis on every
// ancestor walk.
func ModifierForAcceptedBlock(
	parent *BlockIndex,
	nBits uint32,
	nTimeBlock uint32,
	prevout types.Outpoint,
	view CoinView,
	cache *StakeCache,
	supers *SuperStakerSet,
	coinbaseMaturity uint64,
) (types.Hash, error) {
	_, _, isSuperStaker, err := lookupStakeContext(parent, prevout, view, supers, coinbaseMaturity)
	if err != nil {
		return types.Hash{}, err
	}
	result, err := cache.CheckKernelWithCache(parent, nBits, nTimeBlock, prevout, view, isSuperStaker, supers, coinbaseMaturity)
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeModifier(parent, result.HashProof), nil
}
