package miner

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kgxchain/kgxnode/config"
	"github.com/kgxchain/kgxnode/internal/chain"
	"github.com/kgxchain/kgxnode/internal/consensus/pos"
	klog "github.com/kgxchain/kgxnode/internal/log"
	"github.com/kgxchain/kgxnode/internal/utxo"
	"github.com/kgxchain/kgxnode/pkg/block"
	"github.com/kgxchain/kgxnode/pkg/crypto"
	"github.com/kgxchain/kgxnode/pkg/tx"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// searchWindowSeconds is how far past the chain tip's timestamp the staking
// loop searches for a passing kernel on each tick, and searchStepGrid is the
// spacing it steps by — the 16-second grid of DefaultStakeTimestampMask,
// since any candidate that doesn't land on the mask grid fails
// CheckCoinStakeTimestamp before the kernel hash is even worth computing.
const (
	searchWindowSeconds = 60
	searchStepGrid      = 16
)

// Staker runs the proof-of-stake mining loop: scan the staker's own mature
// UTXOs for one that produces a passing kernel hash at some timestamp on
// the consensus grid, build the coinstake and header around it, sign the
// header, and hand the block to the chain. Unlike Miner, a Staker does not
// call engine.Seal — PoS.Seal refuses on purpose, because the search below
// needs the staker's private key and UTXO ownership, neither of which the
// shared consensus.Engine interface carries.
type Staker struct {
	ch     *chain.Chain
	engine *pos.PoS
	index  *chain.PoSChainIndex
	pool   MempoolSelector

	utxoStore *utxo.Store
	scripts   *pos.ScriptCache

	key          *crypto.PrivateKey
	stakerAddr   types.Address
	stakerScript types.Script

	maxBlockTxs int
}

// NewStaker builds a Staker for ch's already-wired PoS engine, staking from
// key's UTXOs. Returns an error if ch is not running proof of stake or its
// UTXO set is not address-indexed.
func NewStaker(ch *chain.Chain, pool MempoolSelector, key *crypto.PrivateKey) (*Staker, error) {
	engine, index, ok := ch.PoSEngine()
	if !ok {
		return nil, fmt.Errorf("staker: chain is not running proof of stake")
	}
	store, ok := ch.UTXOStore()
	if !ok {
		return nil, fmt.Errorf("staker: UTXO set does not support address lookups")
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	return &Staker{
		ch:           ch,
		engine:       engine,
		index:        index,
		pool:         pool,
		utxoStore:    store,
		scripts:      pos.NewScriptCache(),
		key:          key,
		stakerAddr:   addr,
		stakerScript: types.Script{Type: types.ScriptTypeP2PKH, Data: append([]byte(nil), addr[:]...)},
		maxBlockTxs:  config.MaxBlockTxs,
	}, nil
}

// Run ticks once per second, each tick attempting to stake one block on top
// of the current tip. It blocks until ctx is cancelled.
func (s *Staker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			blk, err := s.TryStake()
			if err != nil {
				klog.Stake.Error().Err(err).Msg("Failed to search for a kernel")
				continue
			}
			if blk == nil {
				continue
			}
			if err := s.ch.ProcessBlock(blk); err != nil {
				klog.Stake.Error().Err(err).Msg("Failed to process own staked block")
				continue
			}
			if s.pool != nil {
				s.pool.RemoveConfirmed(blk.Transactions)
			}
			klog.Stake.Info().
				Uint64("height", blk.Header.Height).
				Str("hash", blk.Hash().String()[:16]+"...").
				Uint64("stake_outpoint_index", uint64(blk.Header.PrevoutStake.Index)).
				Msg("Staked block")
		}
	}
}

// TryStake attempts to produce one block on top of the current tip. It
// returns (nil, nil) if no owned UTXO produces a passing kernel within the
// search window — not an error, since failing to find a kernel on a given
// tick is the expected common case, not a fault.
func (s *Staker) TryStake() (*block.Block, error) {
	utxos, err := s.utxoStore.GetByAddress(s.stakerAddr)
	if err != nil {
		return nil, fmt.Errorf("staker: list owned utxos: %w", err)
	}
	if len(utxos) == 0 {
		return nil, nil
	}

	height := s.ch.Height()
	parent := s.index.ActiveChainAtHeight(height)
	params := s.engine.Params()
	nBits := params.InitialDifficulty

	tipTime := s.ch.TipTimestamp()
	start := alignUp(uint32(tipTime)+1, params.Mask())
	cache := s.engine.StakeCache()
	view := s.engine.CoinView()
	supers := s.engine.SuperStakers()

	for _, u := range utxos {
		if u.Value == 0 {
			continue
		}
		isSuper := supers.Contains(u.Script)
		if !isSuper && height+1-u.Height < params.CoinbaseMaturity {
			continue
		}
		outpoint := u.Outpoint
		for t := start; t < start+searchWindowSeconds; t += searchStepGrid {
			result, err := cache.CheckKernelWithCache(parent, nBits, t, outpoint, view, isSuper, supers, params.CoinbaseMaturity)
			if err != nil {
				break // Same failure (missing ancestor, spent coin) for every t.
			}
			if result.Pass {
				blk, err := s.buildBlock(height, t, nBits, outpoint, u.Value)
				if err != nil {
					return nil, err
				}
				return blk, nil
			}
		}
	}
	return nil, nil
}

// alignUp rounds t up to the next timestamp that lands on mask's grid
// (t & mask == 0), matching CheckCoinStakeTimestamp's contract.
func alignUp(t, mask uint32) uint32 {
	if mask == 0 {
		return t
	}
	if t&mask == 0 {
		return t
	}
	return (t | mask) + 1
}

func (s *Staker) buildBlock(height uint64, timestamp, nBits uint32, outpoint types.Outpoint, stakedValue uint64) (*block.Block, error) {
	var selected []*tx.Transaction
	var totalFees uint64
	if s.pool != nil {
		selected = s.pool.SelectForBlock(s.maxBlockTxs - 2) // Reserve coinbase + coinstake slots.
		for _, t := range selected {
			totalFees += s.pool.GetFee(t.Hash())
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		hi, hj := selected[i].Hash(), selected[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})

	params := s.engine.Params()
	// The coinstake must return the staked coin itself, not just mint the
	// reward on top — otherwise every stake would burn its own principal.
	// Only the interest (block reward + pool fees) is subject to MPoS
	// rotation; the staker always recovers the full stake in one output.
	reward := s.ch.BlockReward() + totalFees
	outs, err := s.scripts.CreateMPoSOutputs(s.engine.Blocks(), height, s.stakerScript, reward, params)
	if err != nil {
		return nil, fmt.Errorf("staker: build mpos outputs: %w", err)
	}
	outs[0].Value += stakedValue // outs[0] is always this block's own staker, never a rotated recipient.

	coinstakeOuts := make([]tx.Output, 0, 1+len(outs))
	coinstakeOuts = append(coinstakeOuts, tx.Output{}) // Marker output: zero value, empty script.
	for _, o := range outs {
		coinstakeOuts = append(coinstakeOuts, tx.Output{Value: o.Value, Script: o.Script})
	}

	coinstake := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: outpoint}},
		Outputs: coinstakeOuts,
	}
	sigHash := coinstake.Hash()
	sig, err := s.key.Sign(sigHash[:])
	if err != nil {
		return nil, fmt.Errorf("staker: sign coinstake: %w", err)
	}
	coinstake.Inputs[0].Signature = sig
	coinstake.Inputs[0].PubKey = s.key.PublicKey()

	// An empty, zero-reward coinbase — PoS blocks mint through the
	// coinstake instead — but still BIP34-style height-tagged so its hash
	// is unique across blocks the same way a PoW/PoA coinbase's is.
	coinbase := BuildCoinbase(types.Address{}, 0, height+1)
	coinbase.Outputs = nil

	txs := make([]*tx.Transaction, 0, 2+len(selected))
	txs = append(txs, coinbase, coinstake)
	txs = append(txs, selected...)

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.Hash()
	}

	header := &block.Header{
		Version:      block.CurrentVersion,
		PrevHash:     s.ch.TipHash(),
		MerkleRoot:   block.ComputeMerkleRoot(txHashes),
		Timestamp:    uint64(timestamp),
		Height:       height + 1,
		Difficulty:   uint64(nBits),
		PrevoutStake: outpoint,
	}

	blockSig, err := crypto.SignRecoverable(s.key, hashWithoutSig(header))
	if err != nil {
		return nil, fmt.Errorf("staker: sign header: %w", err)
	}
	header.BlockSig = blockSig

	return block.NewBlock(header, txs), nil
}

func hashWithoutSig(h *block.Header) []byte {
	hash := h.HashWithoutSig()
	return hash[:]
}
