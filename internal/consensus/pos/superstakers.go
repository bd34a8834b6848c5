package pos

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/kgxchain/kgxnode/pkg/types"
)

// SuperStakerSet is an immutable whitelist of scriptPubKey byte sequences
// exempted from the coinbase-maturity check and, once the block is far
// enough past the parent's timestamp, from the weighted-difficulty check.
// This is consensus data: two nodes with different sets will fork.
type SuperStakerSet struct {
	scripts map[string]struct{}
}

// NewSuperStakerSet builds a set from genesis-configured scripts. Each
// entry is canonicalized the same way scriptKey does, so membership tests
// are a map lookup rather than a byte-slice linear scan.
func NewSuperStakerSet(scripts []types.Script) *SuperStakerSet {
	s := &SuperStakerSet{scripts: make(map[string]struct{}, len(scripts))}
	for _, sc := range scripts {
		s.scripts[scriptKey(sc)] = struct{}{}
	}
	return s
}

// Contains reports whether script is a super-staker script.
func (s *SuperStakerSet) Contains(script types.Script) bool {
	if s == nil {
		return false
	}
	_, ok := s.scripts[scriptKey(script)]
	return ok
}

// ParseSuperStakerScripts decodes the genesis-configured hex scriptPubKeys
// (one leading type byte followed by the script data, matching scriptKey's
// own encoding) into a SuperStakerSet. Genesis.Validate already confirmed
// each entry is valid hex before the chain starts, so a decode failure here
// indicates a config/validate mismatch rather than bad user input.
func ParseSuperStakerScripts(hexScripts []string) (*SuperStakerSet, error) {
	scripts := make([]types.Script, 0, len(hexScripts))
	for _, h := range hexScripts {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("pos: decode super-staker script %q: %w", h, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("pos: empty super-staker script")
		}
		scripts = append(scripts, types.Script{Type: types.ScriptType(raw[0]), Data: raw[1:]})
	}
	return NewSuperStakerSet(scripts), nil
}

// scriptKey canonicalizes a Script into a map key: one byte of type
// followed by the raw data bytes.
func scriptKey(s types.Script) string {
	buf := make([]byte, 1+len(s.Data))
	buf[0] = byte(s.Type)
	copy(buf[1:], s.Data)
	return string(buf)
}

// encodeOutpointLE serializes an outpoint as 32-byte little-endian txid
// followed by a 4-byte little-endian index, per the kernel hash's
// serialization contract.
func encodeOutpointLE(o types.Outpoint) []byte {
	buf := make([]byte, 36)
	copy(buf[:32], o.TxID[:])
	binary.LittleEndian.PutUint32(buf[32:], o.Index)
	return buf
}
