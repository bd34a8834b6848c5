package pos

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/kgxchain/kgxnode/pkg/types"
)

// KernelMessageSize is the exact byte length of the kernel hash's input
// message. Any deviation from this layout forks the chain.
const KernelMessageSize = 32 + 4 + 32 + 4 + 4

// doubleSHA256 is the consensus-mandated hash for the kernel/modifier
// chain. It deliberately does not reuse the repo's ambient pkg/crypto.Hash
// (BLAKE3): the kernel hash has fixed test vectors that are only
// reproducible with the algorithm the protocol specifies, and every other
// hash in the node (header hash, tx hash, addresses, merkle roots)
// continues to use BLAKE3 via pkg/crypto.
func doubleSHA256(data []byte) types.Hash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return types.Hash(second)
}

// SerializeKernelMessage builds the exact 76-byte message the kernel hash
// is computed over: modifier(32) || blockFromTime(4) || prevout.txid(32) ||
// prevout.vout(4) || nTimeBlock(4), all integers little-endian.
func SerializeKernelMessage(modifier types.Hash, blockFromTime uint32, prevout types.Outpoint, nTimeBlock uint32) []byte {
	buf := make([]byte, 0, KernelMessageSize)
	buf = append(buf, modifier[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, blockFromTime)
	buf = append(buf, encodeOutpointLE(prevout)...)
	buf = binary.LittleEndian.AppendUint32(buf, nTimeBlock)
	if len(buf) != KernelMessageSize {
		panic(fmt.Sprintf("pos: kernel message is %d bytes, want %d", len(buf), KernelMessageSize))
	}
	return buf
}

// KernelHash computes H(modifier, blockFromTime, prevout, nTimeBlock).
// Calling it twice with equal inputs always yields equal output: no
// wall-clock reads, no randomness.
func KernelHash(modifier types.Hash, blockFromTime uint32, prevout types.Outpoint, nTimeBlock uint32) types.Hash {
	return doubleSHA256(SerializeKernelMessage(modifier, blockFromTime, prevout, nTimeBlock))
}

// CheckCoinStakeTimestamp reports whether a block timestamp lands on the
// consensus grid: nTimeBlock & mask == 0. Exposed as an independently
// callable check (not folded into CheckStakeKernelHash only) because block
// acceptance invokes it directly in addition to the kernel check.
func CheckCoinStakeTimestamp(nTimeBlock uint32, mask uint32) bool {
	return nTimeBlock&mask == 0
}
