package pos

import "github.com/kgxchain/kgxnode/pkg/types"

// stakeCacheEntry holds the two coin facts CheckStakeKernelHash needs
// beyond what's in the header: the stake source block's timestamp and the
// coin's value. Both are immutable for a given outpoint once mined, so a
// cache entry never needs to be updated, only inserted once.
type stakeCacheEntry struct {
	BlockFromTime uint32
	Amount        uint64
}

// StakeCache memoizes the (blockFromTime, amount) lookup a repeatedly
// re-checked stake candidate would otherwise redo on every call (a mining
// loop retries the same prevout across many candidate timestamps). It is
// not safe for concurrent use; callers that stake from multiple goroutines
// give each one its own cache, mirroring how each staker owns its own
// candidate set.
type StakeCache struct {
	entries map[types.Outpoint]stakeCacheEntry
}

// NewStakeCache returns an empty cache.
func NewStakeCache() *StakeCache {
	return &StakeCache{entries: make(map[types.Outpoint]stakeCacheEntry)}
}

// CacheKernel inserts a cache entry for outpoint if one is not already
// present. It never overwrites an existing entry: the underlying coin data
// is immutable, so a second insert attempt would only waste the lookup
// that produced it.
func (c *StakeCache) CacheKernel(parent *BlockIndex, outpoint types.Outpoint, view CoinView) error {
	if _, ok := c.entries[outpoint]; ok {
		return nil
	}
	coinPrev, err := view.Get(outpoint)
	if err != nil {
		return err
	}
	if coinPrev == nil {
		return ErrMissingStakePrevout
	}
	blockFrom := parent.AncestorAtHeight(coinPrev.Height)
	if blockFrom == nil {
		return ErrMissingAncestor
	}
	c.entries[outpoint] = stakeCacheEntry{BlockFromTime: blockFrom.Time, Amount: coinPrev.Value}
	return nil
}

// CheckKernelWithCache runs CheckStakeKernelHash using a cached
// (blockFromTime, amount) pair, populating it via CacheKernel first if
// missing. A passing result is never trusted outright: the cache could
// potentially cause a false-positive stake in the event of a deep reorg, so
// a pass is always re-verified against a completely fresh, uncached lookup
// (coin fetch, maturity, ancestor walk) before being returned. A failing
// cached result is returned as-is — there is nothing a fresh lookup could
// turn a failure into a pass on, since the cached values can only go stale
// in the direction of the coin no longer existing or no longer being mature.
func (c *StakeCache) CheckKernelWithCache(
	parent *BlockIndex,
	nBits uint32,
	nTimeBlock uint32,
	outpoint types.Outpoint,
	view CoinView,
	isSuperStaker bool,
	supers *SuperStakerSet,
	coinbaseMaturity uint64,
) (KernelResult, error) {
	if err := c.CacheKernel(parent, outpoint, view); err != nil {
		return KernelResult{}, err
	}
	entry := c.entries[outpoint]

	result, err := CheckStakeKernelHash(parent, nBits, entry.BlockFromTime, entry.Amount, outpoint, nTimeBlock, isSuperStaker)
	if err != nil {
		return KernelResult{}, err
	}
	if !result.Pass {
		return result, nil
	}

	coinPrev, blockFrom, freshIsSuperStaker, err := lookupStakeContext(parent, outpoint, view, supers, coinbaseMaturity)
	if err != nil {
		return KernelResult{}, err
	}
	return CheckStakeKernelHash(parent, nBits, blockFrom.Time, coinPrev.Value, outpoint, nTimeBlock, freshIsSuperStaker)
}
