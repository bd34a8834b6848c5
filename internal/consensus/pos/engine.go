package pos

import (
	"fmt"
	"sync"

	"github.com/kgxchain/kgxnode/pkg/block"
)

// PoS implements the Engine interface for header-level proof-of-stake
// checks: timestamp grid, kernel hash against the weighted target, and
// block-signature recovery. The coinstake-transaction checks
// (CheckProofOfStake, CheckBlockInputPubKeyMatchesOutputPubKey) need the
// full block and are invoked separately by the chain package the same way
// it already invokes PoW's VerifyDifficulty outside the Engine interface.
type PoS struct {
	mu sync.RWMutex

	index  ChainIndex
	view   CoinView
	blocks BlockStore
	params ConsensusParams
	supers *SuperStakerSet
	cache  *StakeCache
}

// NewPoS creates a PoS engine with no collaborators wired yet. Call
// Configure and the Set* methods before it verifies any header, mirroring
// how PoA is constructed empty and wired with SetSigner/SetStakeChecker
// once the chain that owns those collaborators exists.
func NewPoS() *PoS {
	return &PoS{cache: NewStakeCache()}
}

// Configure sets the consensus parameters and super-staker whitelist,
// both of which come from the active genesis/config rather than being
// fixed at construction time.
func (p *PoS) Configure(params ConsensusParams, supers *SuperStakerSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
	p.supers = supers
}

// SetChainIndex wires the ancestor-walking chain index used to resolve a
// staked coin's source block and the parent of the block under check.
func (p *PoS) SetChainIndex(index ChainIndex) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = index
}

// SetCoinView wires the UTXO lookup used to resolve staked coins.
func (p *PoS) SetCoinView(view CoinView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view = view
}

// SetBlockStore wires the stake-index reader used for MPoS reward rotation.
func (p *PoS) SetBlockStore(store BlockStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = store
}

// StakeCache exposes the engine's stake cache so a miner assembling
// candidates can share the same memoized (blockFromTime, amount) lookups
// the verifying side uses.
func (p *PoS) StakeCache() *StakeCache {
	return p.cache
}

// SuperStakers returns the configured super-staker set.
func (p *PoS) SuperStakers() *SuperStakerSet {
	return p.supers
}

// Params returns the engine's configured consensus parameters.
func (p *PoS) Params() ConsensusParams {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// ChainIndex returns the wired chain index, or nil if not yet configured.
func (p *PoS) ChainIndex() ChainIndex {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// CoinView returns the wired coin view, or nil if not yet configured.
func (p *PoS) CoinView() CoinView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Blocks returns the wired block store, or nil if not yet configured.
func (p *PoS) Blocks() BlockStore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.blocks
}

// VerifyHeader checks the parts of the proof-of-stake contract visible from
// the header alone: the coinstake timestamp grid, the kernel hash against
// the weighted target, and the block signature's recovered key against the
// staked coin's script. CheckProofOfStake's coinstake-shape and
// input/output key-correspondence checks run separately once the block's
// transactions are available.
func (p *PoS) VerifyHeader(header *block.Header) error {
	p.mu.RLock()
	index, view, supers, params := p.index, p.view, p.supers, p.params
	p.mu.RUnlock()

	if index == nil || view == nil {
		return fmt.Errorf("pos: engine not wired to chain index/coin view")
	}

	if !CheckCoinStakeTimestamp(uint32(header.Timestamp), params.Mask()) {
		return ErrTimestampViolation
	}

	var parent *BlockIndex
	if header.Height > 0 {
		parent = index.ActiveChainAtHeight(header.Height - 1)
		if parent == nil {
			return ErrMissingAncestor
		}
	}

	_, _, isSuperStaker, err := lookupStakeContext(parent, header.PrevoutStake, view, supers, params.CoinbaseMaturity)
	if err != nil {
		return err
	}

	// Difficulty carries the compact-form nBits target for PoS headers,
	// the same field PoW repurposes as a linear difficulty — each engine
	// interprets it according to its own consensus rule.
	result, err := p.cache.CheckKernelWithCache(parent, uint32(header.Difficulty), uint32(header.Timestamp), header.PrevoutStake, view, isSuperStaker, supers, params.CoinbaseMaturity)
	if err != nil {
		return err
	}
	if !result.Pass {
		return ErrKernelFailed
	}

	matched, err := CheckRecoveredPubKeyFromBlockSignature(parent, header, view)
	if err != nil {
		return err
	}
	if !matched {
		return ErrBadSignature
	}

	return nil
}

// Prepare sets the header fields a staker must fill in before sealing:
// nothing beyond what the miner already knows (PrevoutStake, Difficulty as
// nBits, Timestamp aligned to the mask) is derived here, since unlike PoW
// there's no chain-wide difficulty schedule to compute — the weighted
// target already folds the staked amount in at verify time.
func (p *PoS) Prepare(header *block.Header) error {
	return nil
}

// Seal is not implemented on the shared engine: block signing needs the
// staker's private key and candidate selection loop, both of which live in
// the miner package's staking loop rather than the consensus engine.
func (p *PoS) Seal(blk *block.Block) error {
	return fmt.Errorf("pos: Seal is driven by the staking loop, not the consensus engine")
}
