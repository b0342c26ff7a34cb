package flif

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/klauspost/compress/flate"
)

// Magic is the signature every FLIF stream starts with
var Magic = [4]byte{'F', 'L', 'I', 'F'}

// Format nibbles (high nibble of the byte after the magic).
const (
	formatStill              = 0x3
	formatStillInterlaced    = 0x4
	formatAnimated           = 0x5
	formatAnimatedInterlaced = 0x6
)

// Depth markers (the byte after the format byte).
const (
	depthCustom = '0'
	depth8      = '1'
	depth16     = '2'
)

// Known optional metadata chunks
const (
	ChunkICCP = "iCCP"
	ChunkEXIF = "eXif"
	ChunkXMP  = "eXmp"
)

// Header is the byte-aligned main header of a FLIF stream.
type Header struct {
	Magic      [4]byte
	Width      uint32
	Height     uint32
	Channels   int
	BitDepth   int // 0 while a custom depth has not been read from the coded header
	Interlaced bool
	Animated   bool
	NumFrames  uint32
	Metadata   []Chunk
}

// Chunk is a metadata chunk; Data holds the raw deflate payload.
type Chunk struct {
	Name string
	Data []byte

	limit int
}

// Inflate decompresses the chunk payload, refusing to grow it beyond the
// metadata limit the stream was decoded with.
func (c Chunk) Inflate() ([]byte, error) {
	limit := c.limit
	if limit <= 0 {
		limit = DefaultOptions().MaxMetadataBytes
	}
	fr := flate.NewReader(bytes.NewReader(c.Data))
	defer fr.Close()
	out, err := io.ReadAll(io.LimitReader(fr, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("flif: inflating %s chunk: %w", c.Name, err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: %s chunk inflates beyond %d bytes", ErrUnsupportedFeature, c.Name, limit)
	}
	return out, nil
}

// ParseHeader reads the main header. The magic is checked before anything
// else is read or allocated.
func ParseHeader(br *BitReader, opts *Options) (*Header, error) {
	opts = opts.withDefaults()
	if err := checkMagic(br); err != nil {
		return nil, err
	}
	h := &Header{Magic: Magic, NumFrames: 1}

	format, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	switch format >> 4 {
	case formatStill:
	case formatStillInterlaced:
		h.Interlaced = true
	case formatAnimated:
		h.Animated = true
	case formatAnimatedInterlaced:
		h.Animated = true
		h.Interlaced = true
	default:
		return nil, fmt.Errorf("%w: format byte 0x%02X", ErrUnsupportedFeature, format)
	}
	h.Channels = int(format & 0x0F)
	if h.Channels < 1 || h.Channels > 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidHeader, h.Channels)
	}

	depth, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	switch depth {
	case depth8:
		h.BitDepth = 8
	case depth16:
		h.BitDepth = 16
	case depthCustom:
		h.BitDepth = 0
	default:
		return nil, fmt.Errorf("%w: depth marker 0x%02X", ErrUnsupportedFeature, depth)
	}

	// dimensions are stored minus one, frame counts minus two
	if h.Width, err = readBiased(br, 1, "width"); err != nil {
		return nil, err
	}
	if h.Height, err = readBiased(br, 1, "height"); err != nil {
		return nil, err
	}
	if h.Animated {
		if h.NumFrames, err = readBiased(br, 2, "frame count"); err != nil {
			return nil, err
		}
	}
	samples := uint64(h.Width) * uint64(h.Height) * uint64(h.Channels) * uint64(h.NumFrames)
	if samples > uint64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %d samples exceed the limit of %d", ErrUnsupportedFeature, samples, opts.MaxPixels)
	}

	if err := h.readChunks(br, opts.MaxMetadataBytes); err != nil {
		return nil, err
	}

	slog.Debug("flif: header parsed",
		slog.Int("width", int(h.Width)),
		slog.Int("height", int(h.Height)),
		slog.Int("channels", h.Channels),
		slog.Int("depth", h.BitDepth),
		slog.Bool("interlaced", h.Interlaced),
		slog.Int("frames", int(h.NumFrames)),
		slog.Int("chunks", len(h.Metadata)))
	return h, nil
}

func readBiased(br *BitReader, bias uint32, what string) (uint32, error) {
	v, err := br.ReadVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32-bias {
		return 0, fmt.Errorf("%w: %s %d+%d overflows", ErrInvalidHeader, what, v, bias)
	}
	return v + bias, nil
}

func checkMagic(br *BitReader) error {
	for i := range Magic {
		c, err := br.ReadByte()
		if err != nil {
			// a proper prefix of the magic is a truncated stream
			return err
		}
		if c != Magic[i] {
			return fmt.Errorf("%w: byte %d is 0x%02X", ErrBadMagic, i, c)
		}
	}
	return nil
}

// readChunks reads metadata chunks up to the format version byte. Chunks
// whose name starts with an upper-case letter are critical: skipping them
// would misrender the image, so they are refused.
func (h *Header) readChunks(br *BitReader, limit int) error {
	for {
		first, err := br.ReadByte()
		if err != nil {
			return err
		}
		if first == 0 {
			return nil
		}
		if first < 32 {
			return fmt.Errorf("%w: format version %d", ErrUnsupportedFeature, first)
		}
		rest, err := br.ReadBytes(3)
		if err != nil {
			return err
		}
		name := string(append([]byte{first}, rest...))
		if first >= 'A' && first <= 'Z' {
			return fmt.Errorf("%w: critical chunk %q", ErrUnsupportedFeature, name)
		}
		size, err := br.ReadVarint()
		if err != nil {
			return err
		}
		if uint64(size) > uint64(limit) {
			return fmt.Errorf("%w: %q chunk of %d bytes exceeds %d", ErrUnsupportedFeature, name, size, limit)
		}
		data, err := br.ReadBytes(int(size))
		if err != nil {
			return err
		}
		h.Metadata = append(h.Metadata, Chunk{Name: name, Data: data, limit: limit})
	}
}

// Chunk returns the first metadata chunk with the given name
func (h *Header) Chunk(name string) (Chunk, bool) {
	for _, c := range h.Metadata {
		if c.Name == name {
			return c, true
		}
	}
	return Chunk{}, false
}

// MaxValue returns the largest sample value for the header's depth
func (h *Header) MaxValue() int {
	return 1<<h.BitDepth - 1
}
