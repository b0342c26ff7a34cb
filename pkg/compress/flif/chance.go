package flif

// Default adaptation parameters. A stream may override both.
const (
	DefaultCutoff       = 2
	DefaultAlphaDivisor = 19
)

// bitChance is the adaptive 12-bit probability that the next bit is 0.
type bitChance uint16

func newBitChance() bitChance {
	return probHalf
}

// chanceTable holds the state transitions of a bitChance after a 0 and after
// a 1. It is built once per decode session and only read afterwards.
type chanceTable struct {
	next [2][probOne]uint16
}

// newChanceTable moves the probability 1/alphaDiv of the way towards the
// observed bit, never closer than cutoff to certainty.
func newChanceTable(cutoff, alphaDiv int) *chanceTable {
	t := &chanceTable{}
	lo, hi := cutoff, probOne-cutoff
	for p := 0; p < probOne; p++ {
		t.next[0][p] = uint16(clip(p+(probOne-p)/alphaDiv, lo, hi))
		t.next[1][p] = uint16(clip(p-p/alphaDiv, lo, hi))
	}
	return t
}

func (t *chanceTable) update(c bitChance, bit int) bitChance {
	return bitChance(t.next[bit&1][c])
}
