package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/kgxchain/kgxnode/pkg/crypto"
	"github.com/kgxchain/kgxnode/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version      uint32         `json:"version"`
	PrevHash     types.Hash     `json:"prev_hash"`
	MerkleRoot   types.Hash     `json:"merkle_root"`
	Timestamp    uint64         `json:"timestamp"`
	Height       uint64         `json:"height"`
	Difficulty   uint64         `json:"difficulty,omitempty"` // PoW: target difficulty. PoS: compact-form nBits.
	Nonce        uint64         `json:"nonce"`
	ValidatorSig []byte         `json:"validator_sig,omitempty"`
	PrevoutStake types.Outpoint `json:"prevout_stake,omitempty"` // PoS: the UTXO staked to produce this block.
	BlockSig     []byte         `json:"block_sig,omitempty"`     // PoS: ECDSA signature over HashWithoutSig().
}

// headerJSON is the JSON representation of Header with hex-encoded byte fields.
type headerJSON struct {
	Version      uint32         `json:"version"`
	PrevHash     types.Hash     `json:"prev_hash"`
	MerkleRoot   types.Hash     `json:"merkle_root"`
	Timestamp    uint64         `json:"timestamp"`
	Height       uint64         `json:"height"`
	Difficulty   uint64         `json:"difficulty,omitempty"`
	Nonce        uint64         `json:"nonce"`
	ValidatorSig string         `json:"validator_sig,omitempty"`
	PrevoutStake types.Outpoint `json:"prevout_stake,omitempty"`
	BlockSig     string         `json:"block_sig,omitempty"`
}

// MarshalJSON encodes the header with hex-encoded signature fields.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Version:      h.Version,
		PrevHash:     h.PrevHash,
		MerkleRoot:   h.MerkleRoot,
		Timestamp:    h.Timestamp,
		Height:       h.Height,
		Difficulty:   h.Difficulty,
		Nonce:        h.Nonce,
		PrevoutStake: h.PrevoutStake,
	}
	if h.ValidatorSig != nil {
		j.ValidatorSig = hex.EncodeToString(h.ValidatorSig)
	}
	if h.BlockSig != nil {
		j.BlockSig = hex.EncodeToString(h.BlockSig)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with hex-encoded signature fields.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.PrevHash = j.PrevHash
	h.MerkleRoot = j.MerkleRoot
	h.Timestamp = j.Timestamp
	h.Height = j.Height
	h.Difficulty = j.Difficulty
	h.Nonce = j.Nonce
	h.PrevoutStake = j.PrevoutStake
	if j.ValidatorSig != "" {
		b, err := hex.DecodeString(j.ValidatorSig)
		if err != nil {
			return err
		}
		h.ValidatorSig = b
	}
	if j.BlockSig != "" {
		b, err := hex.DecodeString(j.BlockSig)
		if err != nil {
			return err
		}
		h.BlockSig = b
	}
	return nil
}

// Hash computes the block header hash.
// Excludes ValidatorSig/BlockSig so the hash is stable for signing.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// HashWithoutSig is the PoS-flavored name for Hash: the digest a staker
// signs and that BlockSig is recovered against. Identical to Hash — kept
// as a distinct accessor because the PoS kernel check spec names it
// explicitly ("block-hash-without-signature").
func (h *Header) HashWithoutSig() types.Hash {
	return h.Hash()
}

// SigningBytes returns the canonical bytes for hashing/signing.
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | height(8) |
// difficulty(8) | nonce(8) | prevout_stake.txid(32) | prevout_stake.index(4)
// Excludes ValidatorSig and BlockSig.
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 136)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = binary.LittleEndian.AppendUint64(buf, h.Difficulty)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	buf = append(buf, h.PrevoutStake.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.PrevoutStake.Index)
	return buf
}
