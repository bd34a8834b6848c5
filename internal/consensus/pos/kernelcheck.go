package pos

import (
	"math/big"

	"github.com/kgxchain/kgxnode/pkg/types"
)

// KernelResult is the outcome of CheckStakeKernelHash: both the proof hash
// and the target are returned regardless of pass/fail so the caller can
// log them (the spec's stated logging rationale — this package itself
// never logs, leaving that to callers via internal/log.Stake).
type KernelResult struct {
	Pass      bool
	HashProof types.Hash
	Target    *big.Int
}

// CheckStakeKernelHash composes KernelHash and WeightedTarget, applying the
// super-staker bypass. parent supplies the stake modifier; nBits/amount
// weight the target; prevout/nTimeBlock/blockFromTime feed the kernel
// message.
//
// Super-staker bypass: if isSuperStaker and nTimeBlock >= parent.Time+64,
// the difficulty comparison is skipped entirely and the kernel passes.
// Otherwise pass iff hashProof < target, both read as unsigned 256-bit
// big-endian integers.
func CheckStakeKernelHash(
	parent *BlockIndex,
	nBits uint32,
	blockFromTime uint32,
	amount uint64,
	prevout types.Outpoint,
	nTimeBlock uint32,
	isSuperStaker bool,
) (KernelResult, error) {
	if nTimeBlock < blockFromTime {
		return KernelResult{}, ErrTimestampViolation
	}

	var modifier types.Hash
	if parent != nil {
		modifier = parent.Modifier
	}

	target := WeightedTarget(nBits, amount)
	hashProof := KernelHash(modifier, blockFromTime, prevout, nTimeBlock)

	bypassed := isSuperStaker && parent != nil && nTimeBlock >= parent.Time+64
	pass := bypassed
	if !bypassed {
		proofInt := new(big.Int).SetBytes(hashProof[:])
		pass = proofInt.Cmp(target) < 0
	}

	return KernelResult{Pass: pass, HashProof: hashProof, Target: target}, nil
}
