package pos

import (
	"testing"

	"github.com/kgxchain/kgxnode/pkg/types"
)

func TestSuperStakerSet_Contains(t *testing.T) {
	script := types.Script{Type: types.ScriptTypeStake, Data: []byte{0x01, 0x02, 0x03}}
	set := NewSuperStakerSet([]types.Script{script})

	if !set.Contains(script) {
		t.Error("expected configured script to be a super staker")
	}
	other := types.Script{Type: types.ScriptTypeStake, Data: []byte{0x09}}
	if set.Contains(other) {
		t.Error("unconfigured script should not be a super staker")
	}
}

func TestSuperStakerSet_Contains_NilSet(t *testing.T) {
	var set *SuperStakerSet
	if set.Contains(types.Script{}) {
		t.Error("nil set should never contain anything")
	}
}

func TestParseSuperStakerScripts_RoundTrips(t *testing.T) {
	set, err := ParseSuperStakerScripts([]string{"40aabbcc"})
	if err != nil {
		t.Fatalf("ParseSuperStakerScripts: %v", err)
	}
	want := types.Script{Type: types.ScriptTypeStake, Data: []byte{0xaa, 0xbb, 0xcc}}
	if !set.Contains(want) {
		t.Error("parsed script should be a member of the resulting set")
	}
}

func TestParseSuperStakerScripts_RejectsBadHex(t *testing.T) {
	if _, err := ParseSuperStakerScripts([]string{"not-hex"}); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestParseSuperStakerScripts_RejectsEmpty(t *testing.T) {
	if _, err := ParseSuperStakerScripts([]string{""}); err == nil {
		t.Error("expected error for empty script")
	}
}
