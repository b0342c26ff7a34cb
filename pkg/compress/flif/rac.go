package flif

import "io"

// Range arithmetic coder (24-bit variant).
//
// The coder keeps a range register of at most 24 bits and renormalises one
// byte at a time whenever the range drops to 16 bits or less. Probabilities
// are 12-bit estimates that the next bit is 0.
const (
	racMaxRangeBits = 24
	racMinRangeBits = 16
	racBaseRange    = 1 << racMaxRangeBits
	racMinRange     = 1 << racMinRangeBits

	probBits = 12
	probOne  = 1 << probBits
	probHalf = probOne / 2
)

// RangeDecoder implements the binary arithmetic decoder
type RangeDecoder struct {
	src io.ByteReader
	rng uint32 // current interval size
	low uint32 // offset of the code value inside the interval, always < rng
}

// NewRangeDecoder reads the initial 3 bytes of the code value from src.
func NewRangeDecoder(src io.ByteReader) (*RangeDecoder, error) {
	d := &RangeDecoder{src: src, rng: racBaseRange}
	for r := racMaxRangeBits; r > 0; r -= 8 {
		c, err := src.ReadByte()
		if err != nil {
			return nil, err
		}
		d.low = d.low<<8 | uint32(c)
	}
	return d, nil
}

// DecodeBit decodes one bit given the 12-bit probability p0 that it is 0.
func (d *RangeDecoder) DecodeBit(p0 uint16) (int, error) {
	if p0 < 1 {
		p0 = 1
	} else if p0 >= probOne {
		p0 = probOne - 1
	}
	split := (d.rng >> probBits) * uint32(p0)
	bit := 0
	if d.low < split {
		d.rng = split
	} else {
		d.low -= split
		d.rng -= split
		bit = 1
	}
	return bit, d.renorm()
}

// DecodeUniform decodes an integer in [min, max] with 50% bits, halving the
// candidate interval each step.
func (d *RangeDecoder) DecodeUniform(min, max int) (int, error) {
	lo, span := min, max-min
	for span > 0 {
		med := span / 2
		bit, err := d.DecodeBit(probHalf)
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			lo += med + 1
			span -= med + 1
		} else {
			span = med
		}
	}
	return lo, nil
}

func (d *RangeDecoder) renorm() error {
	for d.rng <= racMinRange {
		c, err := d.src.ReadByte()
		if err != nil {
			return err
		}
		d.low = d.low<<8 | uint32(c)
		d.rng <<= 8
	}
	return nil
}
