package pos

import "github.com/kgxchain/kgxnode/pkg/types"

// mockCoinView is a hand-rolled CoinView over two plain maps, enough for the
// kernel and signature tests to stage a coin at a given outpoint without
// pulling in a real UTXO store.
type mockCoinView struct {
	unspent map[types.Outpoint]*Coin
	spent   map[types.Outpoint]*Coin
}

func newMockCoinView() *mockCoinView {
	return &mockCoinView{
		unspent: make(map[types.Outpoint]*Coin),
		spent:   make(map[types.Outpoint]*Coin),
	}
}

func (m *mockCoinView) Get(outpoint types.Outpoint) (*Coin, error) {
	return m.unspent[outpoint], nil
}

func (m *mockCoinView) GetSpentCoinFromMainChain(tip *BlockIndex, outpoint types.Outpoint) (*Coin, error) {
	return m.spent[outpoint], nil
}

// mockChainIndex resolves ActiveChainAtHeight from a plain map, letting a
// test wire an arbitrary ancestor chain without building one block at a
// time through NewBlockIndex.
type mockChainIndex struct {
	byHeight map[uint64]*BlockIndex
}

func newMockChainIndex() *mockChainIndex {
	return &mockChainIndex{byHeight: make(map[uint64]*BlockIndex)}
}

func (m *mockChainIndex) ActiveChainAtHeight(height uint64) *BlockIndex {
	return m.byHeight[height]
}

// mockBlockStore backs the MPoS reward-rotation tests with a plain map of
// height -> recorded staker address.
type mockBlockStore struct {
	stakeIndex map[uint64]types.Address
	isPoS      map[uint64]bool
}

func newMockBlockStore() *mockBlockStore {
	return &mockBlockStore{
		stakeIndex: make(map[uint64]types.Address),
		isPoS:      make(map[uint64]bool),
	}
}

func (m *mockBlockStore) ReadStakeIndex(height uint64) (types.Address, error) {
	return m.stakeIndex[height], nil
}

func (m *mockBlockStore) IsProofOfStake(height uint64) (bool, error) {
	return m.isPoS[height], nil
}
