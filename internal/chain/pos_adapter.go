package chain

import (
	"sync"

	"github.com/kgxchain/kgxnode/internal/consensus/pos"
	"github.com/kgxchain/kgxnode/internal/utxo"
	"github.com/kgxchain/kgxnode/pkg/block"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// PoSChainIndex implements pos.ChainIndex over a Chain's block store,
// materializing BlockIndex nodes (with parent links, for ancestor walks)
// lazily and caching them since a single header verification may re-walk
// the same span of ancestors many times (coinbase maturity window, MPoS
// rotation window).
type PoSChainIndex struct {
	mu     sync.Mutex
	blocks *BlockStore
	cache  map[uint64]*pos.BlockIndex
}

// NewPoSChainIndex creates a chain-index adapter backed by blocks.
func NewPoSChainIndex(blocks *BlockStore) *PoSChainIndex {
	return &PoSChainIndex{blocks: blocks, cache: make(map[uint64]*pos.BlockIndex)}
}

// ActiveChainAtHeight returns the BlockIndex at height, with its parent
// chain attached back to genesis (built on demand, memoized).
func (idx *PoSChainIndex) ActiveChainAtHeight(height uint64) *pos.BlockIndex {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.build(height)
}

// Invalidate drops the cache. Call after a reorg — the active chain at a
// given height may now point at a different block.
func (idx *PoSChainIndex) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cache = make(map[uint64]*pos.BlockIndex)
}

func (idx *PoSChainIndex) build(height uint64) *pos.BlockIndex {
	if bi, ok := idx.cache[height]; ok {
		return bi
	}

	blk, err := idx.blocks.GetBlockByHeight(height)
	if err != nil {
		return nil
	}

	var parent *pos.BlockIndex
	if height > 0 {
		parent = idx.build(height - 1)
	}

	modifier, _ := idx.blocks.GetModifier(height)
	bi := pos.NewBlockIndex(height, uint32(blk.Header.Timestamp), blk.Hash(), modifier, parent)
	idx.cache[height] = bi
	return bi
}

// recordPoSIndex persists the stake modifier and reward recipient for a
// just-applied proof-of-stake block, so later ancestor walks and MPoS
// rotation lookups don't need to replay the kernel chain from genesis.
func (c *Chain) recordPoSIndex(blk *block.Block) error {
	posEngine, ok := c.engine.(*pos.PoS)
	if !ok {
		return nil
	}
	height := blk.Header.Height
	if height == 0 {
		return nil // Genesis carries no stake modifier.
	}

	view := posEngine.CoinView()
	var parent *pos.BlockIndex
	if c.posIndex != nil {
		parent = c.posIndex.ActiveChainAtHeight(height - 1)
	}

	modifier, err := pos.ModifierForAcceptedBlock(
		parent, uint32(blk.Header.Difficulty), uint32(blk.Header.Timestamp),
		blk.Header.PrevoutStake, view, posEngine.StakeCache(), posEngine.SuperStakers(), posEngine.Params().CoinbaseMaturity,
	)
	if err != nil {
		return err
	}
	if err := c.blocks.PutModifier(height, modifier); err != nil {
		return err
	}

	var recipient types.Address
	if len(blk.Transactions) > 1 && blk.Transactions[1].IsCoinStake() && len(blk.Transactions[1].Outputs) > 1 {
		recipient = pos.AddressFromScript(blk.Transactions[1].Outputs[1].Script)
	}
	return c.blocks.PutStakeIndex(height, true, recipient)
}

// PoSCoinView implements pos.CoinView over a Chain's live UTXO set and
// block store. GetSpentCoinFromMainChain recovers a coin that the UTXO set
// no longer carries (already spent) by re-reading the transaction output
// straight from the block that created it, which block storage retains
// indefinitely regardless of UTXO-set membership.
type PoSCoinView struct {
	utxos  utxo.Set
	blocks *BlockStore
}

// NewPoSCoinView creates a coin-view adapter.
func NewPoSCoinView(utxos utxo.Set, blocks *BlockStore) *PoSCoinView {
	return &PoSCoinView{utxos: utxos, blocks: blocks}
}

// Get returns the coin currently in the UTXO set for outpoint, or (nil,
// nil) if it is spent or never existed.
func (v *PoSCoinView) Get(outpoint types.Outpoint) (*pos.Coin, error) {
	u, err := v.utxos.Get(outpoint)
	if err != nil {
		return nil, nil
	}
	return &pos.Coin{Script: u.Script, Value: u.Value, Height: u.Height, Coinbase: u.Coinbase}, nil
}

// GetSpentCoinFromMainChain locates outpoint's originating transaction via
// the block store's tx index and reconstructs the coin from the output it
// recorded, regardless of whether the UTXO set still carries it as unspent.
func (v *PoSCoinView) GetSpentCoinFromMainChain(tip *pos.BlockIndex, outpoint types.Outpoint) (*pos.Coin, error) {
	height, blockHash, err := v.blocks.GetTxLocation(outpoint.TxID)
	if err != nil {
		return nil, nil
	}
	blk, err := v.blocks.GetBlock(blockHash)
	if err != nil {
		return nil, nil
	}
	for _, t := range blk.Transactions {
		if t.Hash() != outpoint.TxID {
			continue
		}
		if int(outpoint.Index) >= len(t.Outputs) {
			return nil, nil
		}
		out := t.Outputs[outpoint.Index]
		return &pos.Coin{Script: out.Script, Value: out.Value, Height: height, Coinbase: false}, nil
	}
	return nil, nil
}
