package pos

import (
	"github.com/kgxchain/kgxnode/config"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// Coin is a read-only projection of a UTXO as the kernel check needs it:
// just enough to evaluate maturity, weight the target, and look up the
// locking script for the key-correspondence and signature-recovery checks.
type Coin struct {
	Script   types.Script
	Value    uint64
	Height   uint64
	Coinbase bool
}

// CoinView is the read-only coin lookup surface the kernel core depends on.
// The current-UTXO lookup and the already-spent historical lookup are kept
// as distinct methods (never collapsed into one) because they have
// different failure semantics: Get reports "not currently unspent" while
// GetSpentCoinFromMainChain reports "never existed on this chain at all".
type CoinView interface {
	// Get returns the current UTXO for outpoint, or (nil, nil) if it is not
	// part of the active unspent set (spent or never existed).
	Get(outpoint types.Outpoint) (*Coin, error)

	// GetSpentCoinFromMainChain recovers a coin that has since been spent,
	// by walking back from tip through historical block bodies. Used by the
	// block-signature recovery check, which must validate a signature made
	// against a coin that may have already been spent by the time the
	// block reaches a given peer.
	GetSpentCoinFromMainChain(tip *BlockIndex, outpoint types.Outpoint) (*Coin, error)
}

// BlockIndex is a read-only chain-index entry: enough context to evaluate
// the kernel hash and walk ancestors. The stake modifier and ancestor walk
// are only ever consulted relative to the active chain.
type BlockIndex struct {
	Height   uint64
	Time     uint32
	Hash     types.Hash
	Modifier types.Hash
	parent   *BlockIndex
}

// Parent returns the immediate parent on the active chain, or nil for the
// genesis entry.
func (b *BlockIndex) Parent() *BlockIndex {
	if b == nil {
		return nil
	}
	return b.parent
}

// AncestorAtHeight walks parent pointers back to the given height. Returns
// nil if height is greater than b.Height or no ancestor chain reaches that
// far (e.g. a manually constructed BlockIndex with no parent attached).
// Ancestor lookups are only meaningful for ancestors of the active tip;
// behavior for a b not on the active chain is undefined by design (mirrors
// the original chain-index contract).
func (b *BlockIndex) AncestorAtHeight(height uint64) *BlockIndex {
	cur := b
	for cur != nil && cur.Height > height {
		cur = cur.parent
	}
	if cur == nil || cur.Height != height {
		return nil
	}
	return cur
}

// NewBlockIndex constructs a BlockIndex linked to its parent. Exported so
// internal/chain can build the index incrementally as blocks connect.
func NewBlockIndex(height uint64, t uint32, hash, modifier types.Hash, parent *BlockIndex) *BlockIndex {
	return &BlockIndex{Height: height, Time: t, Hash: hash, Modifier: modifier, parent: parent}
}

// ChainIndex exposes active-chain lookups by height, used by the MPoS
// reward selector to resolve historical block hashes for cache validation.
type ChainIndex interface {
	// ActiveChainAtHeight returns the BlockIndex on the current active
	// chain at height, or nil if height is beyond the tip or the chain has
	// not reached that height yet.
	ActiveChainAtHeight(height uint64) *BlockIndex
}

// BlockStore is the narrow read surface the MPoS reward selector needs
// from block storage: the persisted stake index (height -> staker key-id).
type BlockStore interface {
	// ReadStakeIndex returns the key-id (20-byte address) of the staker
	// that produced the block at height, or a zero Address if no stake
	// index entry exists (the sentinel the spec calls "lookup failure").
	ReadStakeIndex(height uint64) (types.Address, error)

	// IsProofOfStake reports whether the block at height was produced by
	// PoS (as opposed to, e.g., a regtest on-demand PoW/PoA block).
	IsProofOfStake(height uint64) (bool, error)
}

// ConsensusParams holds the subset of genesis-configured consensus rules
// the kernel core needs. Populated from config.ConsensusRules by the
// engine adapter (engine.go).
type ConsensusParams struct {
	MPoSRewardRecipients int
	CoinbaseMaturity     uint64
	StakeTimestampMask   uint32
	MineBlocksOnDemand   bool

	// InitialDifficulty is the fixed compact-form nBits target every header
	// must carry. This node does not retarget PoS difficulty by staked
	// weight over time (no analogue of PoW's CalcNextDifficulty is wired
	// for PoS yet) — the weighted comparison already folds the staked
	// amount into the kernel check, so a fixed nBits plus that weighting is
	// the full difficulty rule.
	InitialDifficulty uint32
}

// Mask returns StakeTimestampMask, or config.DefaultStakeTimestampMask if
// the genesis config left it unset.
func (p ConsensusParams) Mask() uint32 {
	if p.StakeTimestampMask != 0 {
		return p.StakeTimestampMask
	}
	return config.DefaultStakeTimestampMask
}
