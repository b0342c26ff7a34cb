package flif

import (
	"fmt"
	"log/slog"
)

// formatVersion identifies the bitstream flavour this package decodes.
const formatVersion = 10

// Version returns the format compatibility identifier
func Version() int {
	return formatVersion
}

// Range-coded header limits
const (
	maxLoops       = 100
	maxFrameDelay  = 60000
	minCutoff      = 1
	maxCutoff      = 128
	minAlphaDiv    = 2
	maxAlphaDiv    = 128
	maxCustomDepth = 16
	maxPredictor   = 2
)

// streamInfo is the range-coded part of the header.
type streamInfo struct {
	alphaZero  bool
	loops      int
	delays     []int
	cutoff     int
	alphaDiv   int
	transforms []Transform
	ranges     []propRange
	predictors []int
}

// readCustomDepth completes the header of a custom depth stream.
func readCustomDepth(rd *RangeDecoder, h *Header) error {
	if h.BitDepth != 0 {
		return nil
	}
	d, err := rd.DecodeUniform(1, maxCustomDepth)
	if err != nil {
		return err
	}
	h.BitDepth = d
	return nil
}

func readStreamInfo(rd *RangeDecoder, h *Header) (*streamInfo, error) {
	info := &streamInfo{cutoff: DefaultCutoff, alphaDiv: DefaultAlphaDivisor}
	if h.Channels == 4 {
		az, err := rd.DecodeUniform(0, 1)
		if err != nil {
			return nil, err
		}
		info.alphaZero = az == 1
	}
	if h.Animated {
		var err error
		if info.loops, err = rd.DecodeUniform(0, maxLoops); err != nil {
			return nil, err
		}
		// grown as read: the frame count is not backed by any data yet
		for range h.NumFrames {
			d, err := rd.DecodeUniform(0, maxFrameDelay)
			if err != nil {
				return nil, err
			}
			info.delays = append(info.delays, d)
		}
	}
	custom, err := rd.DecodeUniform(0, 1)
	if err != nil {
		return nil, err
	}
	if custom == 1 {
		if info.cutoff, err = rd.DecodeUniform(minCutoff, maxCutoff); err != nil {
			return nil, err
		}
		if info.alphaDiv, err = rd.DecodeUniform(minAlphaDiv, maxAlphaDiv); err != nil {
			return nil, err
		}
	}

	ranges := make([]propRange, h.Channels)
	for p := range ranges {
		ranges[p] = propRange{0, h.MaxValue()}
	}
	if info.transforms, info.ranges, err = readTransforms(rd, ranges, info.alphaZero); err != nil {
		return nil, err
	}
	if h.Interlaced {
		info.predictors = make([]int, h.Channels)
		for p := range info.predictors {
			if info.predictors[p], err = rd.DecodeUniform(0, maxPredictor); err != nil {
				return nil, err
			}
		}
	}
	return info, nil
}

// DecodeHeader parses the header without touching pixel data. For custom
// depth streams the depth is read from the start of the coded header.
func DecodeHeader(data []byte, opts *Options) (*Header, error) {
	opts = opts.withDefaults()
	br := NewBitReader(data)
	h, err := ParseHeader(br, opts)
	if err != nil {
		return nil, err
	}
	if h.BitDepth == 0 {
		rd, err := NewRangeDecoder(br)
		if err != nil {
			return nil, err
		}
		if err := readCustomDepth(rd, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Decode decodes a complete FLIF stream held in memory. All state lives in
// the call; concurrent decodes share nothing.
func Decode(data []byte, opts *Options) (*DecodedImage, error) {
	opts = opts.withDefaults()
	br := NewBitReader(data)
	h, err := ParseHeader(br, opts)
	if err != nil {
		return nil, err
	}
	rd, err := NewRangeDecoder(br)
	if err != nil {
		return nil, err
	}
	if err := readCustomDepth(rd, h); err != nil {
		return nil, err
	}
	info, err := readStreamInfo(rd, h)
	if err != nil {
		return nil, err
	}
	slog.Debug("flif: stream info read",
		slog.Int("depth", h.BitDepth),
		slog.Bool("alpha_zero", info.alphaZero),
		slog.Int("cutoff", info.cutoff),
		slog.Int("alpha_divisor", info.alphaDiv),
		slog.Int("transforms", len(info.transforms)))

	sd := &symbolDecoder{rac: rd, table: newChanceTable(info.cutoff, info.alphaDiv)}
	rc := newReconstructor(sd, opts, h, info)
	if err := rc.decodeTrees(); err != nil {
		return nil, err
	}
	var frames [][]Plane
	for f := range int(h.NumFrames) {
		planes, err := rc.decodeFrame(f)
		if err != nil {
			return nil, err
		}
		frames = append(frames, planes)
	}

	sum, err := readChecksum(rd)
	if err != nil {
		return nil, err
	}
	img, err := assemble(h, info, frames, sum)
	if err != nil {
		return nil, err
	}
	img.Passes = rc.passes()
	slog.Debug("flif: decoded",
		slog.Int("frames", len(img.Frames)),
		slog.Int("passes", img.Passes),
		slog.Int("bytes", br.Offset()))
	return img, nil
}

// readChecksum reads the optional CRC-32 trailer, as two 16-bit halves.
func readChecksum(rd *RangeDecoder) (*uint32, error) {
	has, err := rd.DecodeUniform(0, 1)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	if has == 0 {
		return nil, nil
	}
	hi, err := rd.DecodeUniform(0, 0xFFFF)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	lo, err := rd.DecodeUniform(0, 0xFFFF)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	sum := uint32(hi)<<16 | uint32(lo)
	return &sum, nil
}
