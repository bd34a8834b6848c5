package pos

import "math/big"

// maxUint256 is 2^256 - 1, the saturation ceiling for weighted targets.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TargetFromCompact decodes the Bitcoin-style "compact" difficulty
// encoding: one exponent byte followed by a 3-byte mantissa. A negative or
// overflowing encoding decodes to the saturated maximum rather than
// producing an error — consensus requires defined behavior, not a panic,
// on attacker-supplied header fields.
func TargetFromCompact(nBits uint32) *big.Int {
	exponent := int(nBits >> 24)
	mantissa := new(big.Int).SetUint64(uint64(nBits & 0x007fffff))

	// Bit 0x00800000 is the sign bit in this encoding; a set sign bit means
	// a negative target, which saturates.
	isNegative := nBits&0x00800000 != 0
	if isNegative {
		return new(big.Int).Set(maxUint256)
	}

	var target *big.Int
	switch {
	case exponent <= 3:
		shift := uint((3 - exponent) * 8)
		target = new(big.Int).Rsh(mantissa, shift)
	default:
		shift := uint((exponent - 3) * 8)
		target = new(big.Int).Lsh(mantissa, shift)
	}

	if target.Cmp(maxUint256) > 0 {
		return new(big.Int).Set(maxUint256)
	}
	return target
}

// WeightedTarget scales a compact-form difficulty target by a staked
// amount: bnTarget = decode_compact(nBits) * amount, saturating at
// 2^256 - 1 instead of overflowing. In practice amount fits in ~51 bits
// and normal-operation targets carry >=100 leading zero bits, so
// saturation never triggers on real chain data — but the multiplication
// is performed with unbounded big.Int arithmetic and explicitly clamped
// regardless, because consensus code must define overflow behavior rather
// than rely on a particular width's wraparound.
func WeightedTarget(nBits uint32, amount uint64) *big.Int {
	target := TargetFromCompact(nBits)
	weighted := new(big.Int).Mul(target, new(big.Int).SetUint64(amount))
	if weighted.Cmp(maxUint256) > 0 {
		return new(big.Int).Set(maxUint256)
	}
	return weighted
}
