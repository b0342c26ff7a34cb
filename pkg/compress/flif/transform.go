package flif

import (
	"fmt"
	"log/slog"
)

// Transform ids as numbered in the bitstream.
const (
	TransformChannelCompact = 0
	TransformYCoCg          = 1
	TransformYCC            = 2
	TransformPermutePlanes  = 3
	TransformBounds         = 4
	TransformPaletteAlpha   = 5
	TransformPalette        = 6
	TransformColorBuckets   = 7
	TransformDuplicateFrame = 10
	TransformFrameShape     = 11
	TransformFrameLookback  = 12

	maxTransformID = 12
)

var transformNames = map[int]string{
	TransformChannelCompact: "ChannelCompact",
	TransformYCoCg:          "YCoCg",
	TransformYCC:            "YCC",
	TransformPermutePlanes:  "PermutePlanes",
	TransformBounds:         "Bounds",
	TransformPaletteAlpha:   "PaletteAlpha",
	TransformPalette:        "Palette",
	TransformColorBuckets:   "ColorBuckets",
	8:                       "Reserved8",
	9:                       "Reserved9",
	TransformDuplicateFrame: "DuplicateFrame",
	TransformFrameShape:     "FrameShape",
	TransformFrameLookback:  "FrameLookback",
}

// Transform is a reversible plane transform declared in the coded header.
// Planes are decoded in the transformed domain; invert restores the
// original samples of one frame.
type Transform interface {
	Name() string
	// load reads the transform parameters given the plane ranges in effect
	// before it.
	load(rd *RangeDecoder, ranges []propRange) error
	// ranges returns the plane ranges after the transform.
	ranges(in []propRange) []propRange
	// invert works in place. hidden, when set, marks pixels whose colour
	// was never coded; their samples are clamped rather than rejected.
	invert(planes []Plane, hidden []bool) error
}

func newTransform(id int, alphaZero bool) (Transform, error) {
	switch id {
	case TransformYCoCg:
		return &ycocg{}, nil
	case TransformPermutePlanes:
		return &permutePlanes{alphaZero: alphaZero}, nil
	case TransformBounds:
		return &bounds{}, nil
	}
	name, ok := transformNames[id]
	if !ok {
		name = "unknown"
	}
	return nil, fmt.Errorf("%w: transform %d (%s)", ErrUnsupportedFeature, id, name)
}

// readTransforms reads the transform list and returns it with the plane
// ranges the pixel data is coded in.
func readTransforms(rd *RangeDecoder, ranges []propRange, alphaZero bool) ([]Transform, []propRange, error) {
	var out []Transform
	seen := map[int]bool{}
	for {
		more, err := rd.DecodeUniform(0, 1)
		if err != nil {
			return nil, nil, err
		}
		if more == 0 {
			return out, ranges, nil
		}
		id, err := rd.DecodeUniform(0, maxTransformID)
		if err != nil {
			return nil, nil, err
		}
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: transform %d declared twice", ErrInvalidHeader, id)
		}
		seen[id] = true
		t, err := newTransform(id, alphaZero)
		if err != nil {
			return nil, nil, err
		}
		if err := t.load(rd, ranges); err != nil {
			return nil, nil, err
		}
		ranges = t.ranges(ranges)
		slog.Debug("flif: transform loaded", slog.String("name", t.Name()), slog.Any("ranges", ranges))
		out = append(out, t)
	}
}

// ycocg is the lossless YCoCg-R colour transform on planes 0-2.
type ycocg struct {
	max int
}

func (t *ycocg) Name() string { return "YCoCg" }

func (t *ycocg) load(_ *RangeDecoder, ranges []propRange) error {
	if len(ranges) < 3 {
		return fmt.Errorf("%w: YCoCg needs 3 planes, have %d", ErrInvalidHeader, len(ranges))
	}
	for p := 0; p < 3; p++ {
		if ranges[p].Min != 0 {
			return fmt.Errorf("%w: YCoCg on plane %d with minimum %d", ErrInvalidHeader, p, ranges[p].Min)
		}
		t.max = max(t.max, ranges[p].Max)
	}
	return nil
}

func (t *ycocg) ranges(in []propRange) []propRange {
	out := append([]propRange(nil), in...)
	out[0] = propRange{0, t.max}
	out[1] = propRange{-t.max, t.max}
	out[2] = propRange{-t.max, t.max}
	return out
}

func (t *ycocg) invert(planes []Plane, hidden []bool) error {
	y, co, cg := planes[0].Data, planes[1].Data, planes[2].Data
	for i := range y {
		tmp := y[i] - cg[i]>>1
		g := cg[i] + tmp
		b := tmp - co[i]>>1
		r := b + co[i]
		if r < 0 || g < 0 || b < 0 || int(r) > t.max || int(g) > t.max || int(b) > t.max {
			if hidden == nil || !hidden[i] {
				return fmt.Errorf("%w: YCoCg sample %d gives RGB (%d,%d,%d) outside [0,%d]", ErrCorruptPixelValue, i, r, g, b, t.max)
			}
			r = int32(clip(int(r), 0, t.max))
			g = int32(clip(int(g), 0, t.max))
			b = int32(clip(int(b), 0, t.max))
		}
		y[i], co[i], cg[i] = r, g, b
	}
	return nil
}

// permutePlanes stores original plane perm[p] as plane p, optionally coding
// planes 1 and 2 as differences from plane 0.
type permutePlanes struct {
	alphaZero bool
	subtract  bool
	perm      []int
}

func (t *permutePlanes) Name() string { return "PermutePlanes" }

func (t *permutePlanes) load(rd *RangeDecoder, ranges []propRange) error {
	n := len(ranges)
	if n < 2 {
		return fmt.Errorf("%w: PermutePlanes on %d plane", ErrInvalidHeader, n)
	}
	sub, err := rd.DecodeUniform(0, 1)
	if err != nil {
		return err
	}
	t.subtract = sub == 1
	t.perm = make([]int, n)
	used := make([]bool, n)
	for p := range t.perm {
		v, err := rd.DecodeUniform(0, n-1)
		if err != nil {
			return err
		}
		if used[v] {
			return fmt.Errorf("%w: plane %d permuted twice", ErrInvalidHeader, v)
		}
		used[v] = true
		t.perm[p] = v
	}
	if t.alphaZero && n == 4 && t.perm[3] != 3 {
		return fmt.Errorf("%w: alpha plane moved to %d", ErrInvalidHeader, t.perm[3])
	}
	return nil
}

func (t *permutePlanes) subtracted(p int) bool {
	return t.subtract && (p == 1 || p == 2)
}

func (t *permutePlanes) ranges(in []propRange) []propRange {
	out := make([]propRange, len(in))
	for p := range out {
		out[p] = in[t.perm[p]]
		if t.subtracted(p) {
			base := in[t.perm[0]]
			out[p] = propRange{out[p].Min - base.Max, out[p].Max - base.Min}
		}
	}
	return out
}

// out of range sums are left to the caller, which knows the depth
func (t *permutePlanes) invert(planes []Plane, _ []bool) error {
	stored := make([][]int32, len(planes))
	for p := range planes {
		stored[p] = planes[p].Data
	}
	for p := range t.perm {
		if t.subtracted(p) {
			for i, v := range stored[0] {
				stored[p][i] += v
			}
		}
	}
	for p := range t.perm {
		planes[t.perm[p]].Data = stored[p]
	}
	return nil
}

// bounds narrows each plane to the [min, max] actually used.
type bounds struct {
	b []propRange
}

func (t *bounds) Name() string { return "Bounds" }

func (t *bounds) load(rd *RangeDecoder, ranges []propRange) error {
	t.b = make([]propRange, len(ranges))
	for p, r := range ranges {
		lo, err := rd.DecodeUniform(r.Min, r.Max)
		if err != nil {
			return err
		}
		hi, err := rd.DecodeUniform(lo, r.Max)
		if err != nil {
			return err
		}
		t.b[p] = propRange{lo, hi}
	}
	return nil
}

func (t *bounds) ranges(_ []propRange) []propRange {
	return append([]propRange(nil), t.b...)
}

// values were decoded inside the narrowed ranges, nothing to undo
func (t *bounds) invert(_ []Plane, _ []bool) error { return nil }
