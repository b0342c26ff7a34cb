package flif

import (
	"fmt"
	"math/bits"
)

// symbolBits bounds the magnitude of a near-zero coded integer to
// 2^symbolBits - 1.
const symbolBits = 20

// symbolChances is the set of adaptive contexts behind one near-zero integer
// coder: the zero flag, the sign, the unary exponent (indexed by exponent and
// sign) and the mantissa bits.
type symbolChances struct {
	zero bitChance
	sign bitChance
	exp  [2 * (symbolBits - 1)]bitChance
	mant [symbolBits]bitChance
}

func newSymbolChances() symbolChances {
	var sc symbolChances
	sc.zero = newBitChance()
	sc.sign = newBitChance()
	for i := range sc.exp {
		sc.exp[i] = newBitChance()
	}
	for i := range sc.mant {
		sc.mant[i] = newBitChance()
	}
	return sc
}

// symbolDecoder decodes adaptive bits and near-zero integers from one range
// decoder. It is owned by a single decode session.
type symbolDecoder struct {
	rac   *RangeDecoder
	table *chanceTable
}

func (s *symbolDecoder) bit(c *bitChance) (int, error) {
	bit, err := s.rac.DecodeBit(uint16(*c))
	if err != nil {
		return 0, err
	}
	*c = s.table.update(*c, bit)
	return bit, nil
}

// decodeInt decodes an integer in [min, max]. Small magnitudes are cheapest:
// a zero flag, then a sign, then the exponent in unary and finally the
// mantissa bits from high to low, each with its own adaptive context.
func (s *symbolDecoder) decodeInt(sc *symbolChances, min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: empty range [%d, %d]", ErrCorruptPixelValue, min, max)
	}
	if min == max {
		return min, nil
	}
	// ranges that exclude zero are shifted so that they touch it
	offset := 0
	switch {
	case min > 0:
		offset = min
	case max < 0:
		offset = max
	}
	min, max = min-offset, max-offset

	zero, err := s.bit(&sc.zero)
	if err != nil {
		return 0, err
	}
	if zero == 1 {
		return offset, nil
	}

	positive := true
	switch {
	case min < 0 && max > 0:
		b, err := s.bit(&sc.sign)
		if err != nil {
			return 0, err
		}
		positive = b == 1
	case min < 0:
		positive = false
	}
	amax := max
	sign := 1
	if !positive {
		amax = -min
		sign = 0
	}

	emax := ilog2(amax)
	if emax >= symbolBits {
		return 0, fmt.Errorf("%w: magnitude range 2^%d exceeds %d bits", ErrCorruptPixelValue, emax, symbolBits)
	}
	e := 0
	for ; e < emax; e++ {
		b, err := s.bit(&sc.exp[(e<<1)+sign])
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
	}

	have := 1 << e
	for pos := e - 1; pos >= 0; pos-- {
		withBit := have | 1<<pos
		if withBit > amax {
			// a 1 here would overshoot the range
			continue
		}
		b, err := s.bit(&sc.mant[pos])
		if err != nil {
			return 0, err
		}
		if b == 1 {
			have = withBit
		}
	}
	if !positive {
		have = -have
	}
	return have + offset, nil
}

// ilog2 returns floor(log2(v)) for v > 0
func ilog2(v int) int {
	return bits.Len(uint(v)) - 1
}

// clip clamps value to range [lo, hi]
func clip(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// median3 returns the middle value of a, b and c
func median3(a, b, c int) int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}
