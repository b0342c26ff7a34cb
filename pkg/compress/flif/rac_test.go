package flif

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeDecoder_Bits(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	type step struct {
		bit int
		p0  uint16
	}
	steps := make([]step, 5000)
	for i := range steps {
		p0 := uint16(rnd.Intn(probOne + 2)) // includes out-of-range chances
		bit := 0
		if rnd.Intn(probOne) >= int(p0) {
			bit = 1
		}
		steps[i] = step{bit, p0}
	}

	enc := newRACEncoder()
	for _, s := range steps {
		enc.encodeBit(s.bit, s.p0)
	}
	data := enc.flush()

	br := NewBitReader(data)
	dec, err := NewRangeDecoder(br)
	require.NoError(t, err)
	for i, s := range steps {
		bit, err := dec.DecodeBit(s.p0)
		require.NoError(t, err, "bit %d", i)
		require.Equal(t, s.bit, bit, "bit %d", i)
	}
	assert.Zero(t, br.Remaining(), "stream must be consumed exactly")
}

func TestRangeDecoder_Uniform(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
	}{
		{"Bit", 0, 1},
		{"Single", 5, 5},
		{"Small", 1, 16},
		{"Negative", -300, 17},
		{"Word", 0, 0xFFFF},
		{"Odd", 3, 1000003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(tt.max)))
			values := []int{tt.min, tt.max}
			for i := 0; i < 200; i++ {
				values = append(values, tt.min+rnd.Intn(tt.max-tt.min+1))
			}
			enc := newRACEncoder()
			for _, v := range values {
				enc.encodeUniform(v, tt.min, tt.max)
			}
			dec, err := NewRangeDecoder(bytes.NewReader(enc.flush()))
			require.NoError(t, err)
			for _, want := range values {
				got, err := dec.DecodeUniform(tt.min, tt.max)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestRangeDecoder_Truncated(t *testing.T) {
	_, err := NewRangeDecoder(NewBitReader([]byte{0x12, 0x34}))
	assert.ErrorIs(t, err, ErrTruncatedInput)

	enc := newRACEncoder()
	for i := 0; i < 64; i++ {
		enc.encodeBit(i&1, 100)
	}
	data := enc.flush()
	dec, err := NewRangeDecoder(NewBitReader(data[:len(data)-1]))
	require.NoError(t, err)
	for i := 0; i < 64; i++ {
		if _, err = dec.DecodeBit(100); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestRangeEncoder_Carry(t *testing.T) {
	// long runs of likely-zero ones push low up until it carries
	enc := newRACEncoder()
	var bits []int
	for i := 0; i < 3000; i++ {
		b := 1
		if i%97 == 0 {
			b = 0
		}
		bits = append(bits, b)
		enc.encodeBit(b, 4000)
	}
	dec, err := NewRangeDecoder(bytes.NewReader(enc.flush()))
	require.NoError(t, err)
	for i, want := range bits {
		got, err := dec.DecodeBit(4000)
		require.NoError(t, err)
		require.Equal(t, want, got, "bit %d", i)
	}
}

func TestChanceTable(t *testing.T) {
	tbl := newChanceTable(DefaultCutoff, DefaultAlphaDivisor)
	c := newBitChance()
	assert.Equal(t, bitChance(probHalf), c)

	up := tbl.update(c, 0)
	assert.Greater(t, int(up), int(c), "a zero raises the chance of zero")
	down := tbl.update(c, 1)
	assert.Less(t, int(down), int(c))

	// with the default divisor the steps vanish before the cutoff is hit
	for i := 0; i < 1000; i++ {
		c = tbl.update(c, 0)
	}
	assert.Equal(t, bitChance(4078), c)
	for i := 0; i < 1000; i++ {
		c = tbl.update(c, 1)
	}
	assert.Equal(t, bitChance(18), c)

	tight := newChanceTable(30, 4)
	c = newBitChance()
	for i := 0; i < 100; i++ {
		c = tight.update(c, 0)
	}
	assert.Equal(t, bitChance(probOne-30), c)
	for i := 0; i < 100; i++ {
		c = tight.update(c, 1)
	}
	assert.Equal(t, bitChance(30), c)
}
