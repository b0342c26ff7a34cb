package flif

import (
	"fmt"
	"math"
)

// maxVarintBytes bounds a varint; 5 groups of 7 bits cover a uint32.
const maxVarintBytes = 5

// BitReader reads bits MSB-first from an in-memory byte slice.
// It owns nothing but its cursor; the slice is never modified.
type BitReader struct {
	data []byte
	pos  int // bit offset
}

// NewBitReader creates a bit reader positioned at the first bit of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBit reads a single bit
func (b *BitReader) ReadBit() (int, error) {
	if b.pos >= len(b.data)*8 {
		return 0, fmt.Errorf("%w: no bits left at byte %d", ErrTruncatedInput, b.pos/8)
	}
	c := b.data[b.pos>>3]
	bit := int(c>>(7-uint(b.pos&7))) & 1
	b.pos++
	return bit, nil
}

// ReadBits reads n bits (n <= 32), most significant first.
func (b *BitReader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("flif: cannot read %d bits at once", n)
	}
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := b.ReadBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint32(bit)
	}
	return v, nil
}

// ReadByte reads 8 bits. On a byte boundary it takes the fast path.
func (b *BitReader) ReadByte() (byte, error) {
	if b.pos&7 == 0 {
		idx := b.pos >> 3
		if idx >= len(b.data) {
			return 0, fmt.Errorf("%w: no bytes left at byte %d", ErrTruncatedInput, idx)
		}
		b.pos += 8
		return b.data[idx], nil
	}
	v, err := b.ReadBits(8)
	return byte(v), err
}

// ReadBytes reads n whole bytes after aligning to a byte boundary.
// The length is checked before anything is allocated.
func (b *BitReader) ReadBytes(n int) ([]byte, error) {
	b.Align()
	idx := b.pos >> 3
	if n < 0 || n > len(b.data)-idx {
		return nil, fmt.Errorf("%w: need %d bytes at byte %d, have %d", ErrTruncatedInput, n, idx, len(b.data)-idx)
	}
	out := make([]byte, n)
	copy(out, b.data[idx:idx+n])
	b.pos += n * 8
	return out, nil
}

// ReadVarint reads a FLIF varint: 7 bits per byte, high bit set while more
// bytes follow, most significant group first.
func (b *BitReader) ReadVarint() (uint32, error) {
	var v uint64
	for i := 0; i < maxVarintBytes; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		v = v<<7 | uint64(c&0x7F)
		if c&0x80 == 0 {
			if v > math.MaxUint32 {
				return 0, fmt.Errorf("%w: value %d overflows 32 bits", ErrMalformedVarint, v)
			}
			return uint32(v), nil
		}
	}
	return 0, fmt.Errorf("%w: longer than %d bytes", ErrMalformedVarint, maxVarintBytes)
}

// Align discards bits up to the next byte boundary
func (b *BitReader) Align() {
	b.pos = (b.pos + 7) &^ 7
}

// Offset returns the byte offset of the cursor (rounded down).
func (b *BitReader) Offset() int {
	return b.pos >> 3
}

// Remaining returns the number of unread bits
func (b *BitReader) Remaining() int {
	return len(b.data)*8 - b.pos
}
