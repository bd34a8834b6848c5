package pos

import (
	"github.com/kgxchain/kgxnode/pkg/types"
)

// scriptCacheEntry remembers which reward script a past height paid and
// which block hash it was recorded under, so CleanScriptCache can tell a
// stale entry (its block has since been reorganized out) from a live one.
type scriptCacheEntry struct {
	Script    types.Script
	BlockHash types.Hash
}

// ScriptCache bounds the memory a multi-recipient reward scheme would
// otherwise spend re-deriving each recipient's script from the stake index
// on every block: it remembers the last MPoSRewardRecipients*1.5 heights'
// scripts and evicts anything outside that window on either side of the
// tip or no longer on the active chain. Not
// safe for concurrent use.
type ScriptCache struct {
	entries map[uint64]scriptCacheEntry
}

// NewScriptCache returns an empty cache.
func NewScriptCache() *ScriptCache {
	return &ScriptCache{entries: make(map[uint64]scriptCacheEntry)}
}

// GetMPoSOutputScripts returns the reward script recorded for height,
// consulting the cache before falling back to the stake index in store. The
// all-zero address recorded by ReadStakeIndex is the sentinel for "burn
// this recipient's share" rather than a real payable key-id.
//
// height must already be a PoS block, or the lookup fails — unless
// mineBlocksOnDemand permits a non-PoS block at height (a regtest-style
// chain where PoW/PoA blocks are mined on demand alongside PoS ones), in
// which case the recipient's share is burned instead. A non-PoS result is
// never written into the cache: whether height is PoS does not change, but
// leaving it uncached keeps this branch from masking a later genuine
// ReadStakeIndex failure at the same height.
func (c *ScriptCache) GetMPoSOutputScripts(store BlockStore, height uint64, blockHash types.Hash, mineBlocksOnDemand bool) (types.Script, error) {
	if entry, ok := c.entries[height]; ok {
		return entry.Script, nil
	}

	isPoS, err := store.IsProofOfStake(height)
	if err != nil {
		return types.Script{}, ErrBlockReadIO
	}
	if !isPoS {
		if mineBlocksOnDemand {
			return types.Script{Type: types.ScriptTypeBurn}, nil
		}
		return types.Script{}, ErrBlockNotProofOfStake
	}

	addr, err := store.ReadStakeIndex(height)
	if err != nil {
		return types.Script{}, ErrBlockReadIO
	}
	script := scriptForRecipient(addr)
	c.entries[height] = scriptCacheEntry{Script: script, BlockHash: blockHash}
	return script, nil
}

// scriptForRecipient turns a recorded key-id into its payable script, or a
// burn script for the zero-address sentinel.
func scriptForRecipient(addr types.Address) types.Script {
	var zero types.Address
	if addr == zero {
		return types.Script{Type: types.ScriptTypeBurn}
	}
	return types.Script{Type: types.ScriptTypeP2PKH, Data: append([]byte(nil), addr[:]...)}
}

// AddressFromScript extracts the key-id the stake index records for a
// reward output's script, or the zero address (burn sentinel) for any
// script shape that doesn't carry one directly.
func AddressFromScript(script types.Script) types.Address {
	if script.Type == types.ScriptTypeP2PKH && len(script.Data) == types.AddressSize {
		var addr types.Address
		copy(addr[:], script.Data)
		return addr
	}
	return types.Address{}
}

// AddMPoSScript records the reward script paid at height so a later
// GetMPoSOutputScripts call (e.g. while validating the block N heights
// later that must repeat the same recipient rotation) can recover it
// without re-deriving it from whichever staker mined that height.
func (c *ScriptCache) AddMPoSScript(height uint64, blockHash types.Hash, script types.Script) {
	c.entries[height] = scriptCacheEntry{Script: script, BlockHash: blockHash}
}

// CreateMPoSOutputs builds the reward-splitting outputs for a coinstake:
// the staker's own output plus one output per prior recipient in the
// rotation window, each paying the script GetMPoSOutputScripts resolves for
// that recipient's height. params.MineBlocksOnDemand relaxes the window to
// always include the staker alone when the chain is too young to have
// MPoSRewardRecipients worth of history — a regtest/single-node affordance,
// not a mainnet behavior.
func (c *ScriptCache) CreateMPoSOutputs(
	store BlockStore,
	currentHeight uint64,
	stakerScript types.Script,
	reward uint64,
	params ConsensusParams,
) ([]Coin, error) {
	n := params.MPoSRewardRecipients
	if n <= 1 || params.MineBlocksOnDemand && currentHeight < uint64(n) {
		return []Coin{{Script: stakerScript, Value: reward}}, nil
	}

	share := reward / uint64(n)
	remainder := reward - share*uint64(n)

	outs := make([]Coin, 0, n)
	outs = append(outs, Coin{Script: stakerScript, Value: share + remainder})

	// Recipients are offset COINBASE_MATURITY blocks into the past so each
	// one's own stake has matured by the time this block pays it, per
	// base = height - COINBASE_MATURITY: the rotation walks base, base-1,
	// ..., base-(n-2). A base (or any step below it) that goes negative
	// means the chain has not yet reached far enough back for that
	// recipient to exist; the rotation simply stops there rather than
	// erroring, so a young chain still produces a valid, if shorter, payout.
	base := int64(currentHeight) - int64(params.CoinbaseMaturity)
	for i := 0; i < n-1; i++ {
		h := base - int64(i)
		if h < 0 {
			break
		}
		script, err := c.GetMPoSOutputScripts(store, uint64(h), types.Hash{}, params.MineBlocksOnDemand)
		if err != nil {
			return nil, err
		}
		outs = append(outs, Coin{Script: script, Value: share})
	}
	return outs, nil
}

// CleanScriptCache evicts entries outside the retention window
// floor(1.5*N) on either side of tipHeight, and any remaining entry whose
// recorded block hash no longer matches the active chain at that height
// (the height was reorganized onto a different block, so its old
// recipient no longer applies).
func (c *ScriptCache) CleanScriptCache(tipHeight uint64, n int, index ChainIndex) {
	window := uint64(n*3) / 2
	for height, entry := range c.entries {
		if tipHeight > window && height < tipHeight-window {
			delete(c.entries, height)
			continue
		}
		if height > tipHeight+window {
			delete(c.entries, height)
			continue
		}
		if block := index.ActiveChainAtHeight(height); block != nil && block.Hash != entry.BlockHash {
			delete(c.entries, height)
		}
	}
}
