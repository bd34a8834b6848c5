package pos

import (
	"testing"

	"github.com/kgxchain/kgxnode/pkg/types"
)

func TestCreateMPoSOutputs_SingleRecipientWhenDisabled(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1, 2, 3}}

	outs, err := cache.CreateMPoSOutputs(store, 100, stakerScript, 1000, ConsensusParams{MPoSRewardRecipients: 1})
	if err != nil {
		t.Fatalf("CreateMPoSOutputs: %v", err)
	}
	if len(outs) != 1 || outs[0].Value != 1000 {
		t.Errorf("outs = %+v, want single 1000-value output", outs)
	}
}

func TestCreateMPoSOutputs_SingleRecipientOnYoungChain(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1, 2, 3}}

	params := ConsensusParams{MPoSRewardRecipients: 5, MineBlocksOnDemand: true}
	outs, err := cache.CreateMPoSOutputs(store, 2, stakerScript, 1000, params)
	if err != nil {
		t.Fatalf("CreateMPoSOutputs: %v", err)
	}
	if len(outs) != 1 {
		t.Errorf("young on-demand chain should pay only the staker, got %d outputs", len(outs))
	}
}

func TestCreateMPoSOutputs_SplitsAcrossRecipients(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	var addr1, addr2 types.Address
	addr1[0] = 0xAA
	addr2[0] = 0xBB
	// base = currentHeight(9) - CoinbaseMaturity(2) = 7, so recipients land
	// at heights 7 and 6 (base, base-1) — both strictly in the past of the
	// block being built, not at currentHeight itself.
	store.stakeIndex[7] = addr1
	store.stakeIndex[6] = addr2
	store.isPoS[7] = true
	store.isPoS[6] = true

	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1, 2, 3}}
	params := ConsensusParams{MPoSRewardRecipients: 3, CoinbaseMaturity: 2}

	outs, err := cache.CreateMPoSOutputs(store, 9, stakerScript, 300, params)
	if err != nil {
		t.Fatalf("CreateMPoSOutputs: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("len(outs) = %d, want 3", len(outs))
	}
	if outs[0].Script.Type != stakerScript.Type {
		t.Error("first output should pay the staker")
	}
	if got := AddressFromScript(outs[1].Script); got != addr1 {
		t.Errorf("recipient at base height 7 = %x, want %x", got, addr1)
	}
	if got := AddressFromScript(outs[2].Script); got != addr2 {
		t.Errorf("recipient at base-1 height 6 = %x, want %x", got, addr2)
	}
	var total uint64
	for _, o := range outs {
		total += o.Value
	}
	if total != 300 {
		t.Errorf("total payout = %d, want 300", total)
	}
}

func TestCreateMPoSOutputs_StopsAtChainStart(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	store.isPoS[0] = true
	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1}}
	params := ConsensusParams{MPoSRewardRecipients: 5, CoinbaseMaturity: 1}

	// base = currentHeight(1) - CoinbaseMaturity(1) = 0; the next step down
	// (base-1 = -1) runs off the start of the chain, so the rotation runs
	// out of chain before it runs out of recipients.
	outs, err := cache.CreateMPoSOutputs(store, 1, stakerScript, 500, params)
	if err != nil {
		t.Fatalf("CreateMPoSOutputs: %v", err)
	}
	if len(outs) != 2 {
		t.Errorf("len(outs) = %d, want 2 (staker + base height 0)", len(outs))
	}
}

func TestCreateMPoSOutputs_FailsOnNonPoSRecipientHeight(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore() // isPoS defaults to false for every height.
	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1}}
	params := ConsensusParams{MPoSRewardRecipients: 3, CoinbaseMaturity: 2}

	_, err := cache.CreateMPoSOutputs(store, 9, stakerScript, 300, params)
	if err != ErrBlockNotProofOfStake {
		t.Errorf("err = %v, want ErrBlockNotProofOfStake", err)
	}
}

func TestCreateMPoSOutputs_BurnsNonPoSRecipientHeightOnDemand(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore() // isPoS defaults to false for every height.
	stakerScript := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{1}}
	params := ConsensusParams{MPoSRewardRecipients: 3, CoinbaseMaturity: 2, MineBlocksOnDemand: true}

	// currentHeight(20) is well past the young-chain shortcut threshold
	// (currentHeight >= n), so the rotation still walks the real window —
	// MineBlocksOnDemand only changes what happens when a recipient height
	// turns out not to be PoS, not whether the rotation runs at all.
	outs, err := cache.CreateMPoSOutputs(store, 20, stakerScript, 300, params)
	if err != nil {
		t.Fatalf("CreateMPoSOutputs: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("len(outs) = %d, want 3", len(outs))
	}
	for _, o := range outs[1:] {
		if o.Script.Type != types.ScriptTypeBurn {
			t.Errorf("non-PoS recipient script = %v, want Burn under MineBlocksOnDemand", o.Script.Type)
		}
	}
}

func TestGetMPoSOutputScripts_BurnsZeroAddress(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	store.isPoS[42] = true
	script, err := cache.GetMPoSOutputScripts(store, 42, types.Hash{}, false)
	if err != nil {
		t.Fatalf("GetMPoSOutputScripts: %v", err)
	}
	if script.Type != types.ScriptTypeBurn {
		t.Errorf("script type = %v, want Burn for an unrecorded height", script.Type)
	}
}

func TestGetMPoSOutputScripts_FailsOnNonPoSHeight(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore() // isPoS defaults to false.
	_, err := cache.GetMPoSOutputScripts(store, 42, types.Hash{}, false)
	if err != ErrBlockNotProofOfStake {
		t.Errorf("err = %v, want ErrBlockNotProofOfStake", err)
	}
}

func TestGetMPoSOutputScripts_BurnsNonPoSHeightOnDemand(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore() // isPoS defaults to false.
	script, err := cache.GetMPoSOutputScripts(store, 42, types.Hash{}, true)
	if err != nil {
		t.Fatalf("GetMPoSOutputScripts: %v", err)
	}
	if script.Type != types.ScriptTypeBurn {
		t.Errorf("script type = %v, want Burn for a non-PoS height under MineBlocksOnDemand", script.Type)
	}
}

func TestGetMPoSOutputScripts_CachesAfterFirstLookup(t *testing.T) {
	cache := NewScriptCache()
	store := newMockBlockStore()
	var addr types.Address
	addr[0] = 0x42
	store.stakeIndex[42] = addr
	store.isPoS[42] = true

	first, err := cache.GetMPoSOutputScripts(store, 42, types.Hash{1}, false)
	if err != nil {
		t.Fatalf("GetMPoSOutputScripts: %v", err)
	}

	// Remove the entry from the backing store; a cache hit must not notice.
	delete(store.stakeIndex, 42)
	delete(store.isPoS, 42)
	second, err := cache.GetMPoSOutputScripts(store, 42, types.Hash{1}, false)
	if err != nil {
		t.Fatalf("GetMPoSOutputScripts (cached): %v", err)
	}
	if first.Type != second.Type || string(first.Data) != string(second.Data) {
		t.Error("cached lookup should return the same script as the first lookup")
	}
}

func TestAddressFromScript(t *testing.T) {
	var addr types.Address
	addr[0] = 0x7
	script := types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]}
	if got := AddressFromScript(script); got != addr {
		t.Errorf("AddressFromScript = %x, want %x", got, addr)
	}

	burn := types.Script{Type: types.ScriptTypeBurn}
	if got := AddressFromScript(burn); got != (types.Address{}) {
		t.Errorf("AddressFromScript(burn) = %x, want zero", got)
	}
}

func TestCleanScriptCache_EvictsOutsideWindow(t *testing.T) {
	cache := NewScriptCache()
	cache.AddMPoSScript(1, types.Hash{1}, types.Script{})
	cache.AddMPoSScript(100, types.Hash{2}, types.Script{})

	index := newMockChainIndex()
	index.byHeight[100] = NewBlockIndex(100, 0, types.Hash{2}, types.Hash{}, nil)

	cache.CleanScriptCache(100, 3, index) // window = 4
	if _, ok := cache.entries[1]; ok {
		t.Error("height far below the retention window should have been evicted")
	}
	if _, ok := cache.entries[100]; !ok {
		t.Error("height within the window and matching the active chain should be kept")
	}
}

func TestCleanScriptCache_EvictsAboveWindow(t *testing.T) {
	cache := NewScriptCache()
	cache.AddMPoSScript(100, types.Hash{1}, types.Script{})
	cache.AddMPoSScript(104, types.Hash{2}, types.Script{}) // 100+4, inside the window.
	cache.AddMPoSScript(200, types.Hash{3}, types.Script{}) // far above tipHeight+window.

	index := newMockChainIndex()
	index.byHeight[100] = NewBlockIndex(100, 0, types.Hash{1}, types.Hash{}, nil)
	index.byHeight[104] = NewBlockIndex(104, 0, types.Hash{2}, types.Hash{}, nil)

	cache.CleanScriptCache(100, 3, index) // window = 4
	if _, ok := cache.entries[200]; ok {
		t.Error("height far above the retention window should have been evicted")
	}
	if _, ok := cache.entries[104]; !ok {
		t.Error("height within the window and matching the active chain should be kept")
	}
}

func TestCleanScriptCache_EvictsReorgedEntry(t *testing.T) {
	cache := NewScriptCache()
	cache.AddMPoSScript(50, types.Hash{0xAA}, types.Script{})

	index := newMockChainIndex()
	// The active chain at height 50 now carries a different hash than what
	// was recorded: this height was reorganized onto another block.
	index.byHeight[50] = NewBlockIndex(50, 0, types.Hash{0xBB}, types.Hash{}, nil)

	cache.CleanScriptCache(50, 3, index)
	if _, ok := cache.entries[50]; ok {
		t.Error("entry whose recorded hash no longer matches the active chain should be evicted")
	}
}
