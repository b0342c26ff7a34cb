package flif

import (
	"fmt"
	"log/slog"
)

// PlaneState is the progress of one plane through a decode.
type PlaneState int

const (
	AwaitingTree PlaneState = iota
	Reconstructing
	PassComplete
	PlaneComplete
)

func (s PlaneState) String() string {
	switch s {
	case AwaitingTree:
		return "AwaitingTree"
	case Reconstructing:
		return "Reconstructing"
	case PassComplete:
		return "PassComplete"
	case PlaneComplete:
		return "PlaneComplete"
	}
	return fmt.Sprintf("PlaneState(%d)", int(s))
}

// PassEvent reports a plane state change. Zoom is -1 for non-interlaced
// images and for tree events.
type PassEvent struct {
	Frame int
	Plane int
	Pass  int
	Zoom  int
	State PlaneState
}

// planeOrder is the order planes are coded in: alpha first so colour planes
// can use it as context.
var planeOrder = [4]int{3, 0, 1, 2}

// reconstructor rebuilds the planes of every frame from the pixel data.
type reconstructor struct {
	sd         *symbolDecoder
	opts       *Options
	width      int
	height     int
	ranges     []propRange // per plane, in the transformed domain
	interlaced bool
	predictors []int
	alphaZero  bool
	trees      []*ContextTree // nil for constant planes
}

func newReconstructor(sd *symbolDecoder, opts *Options, h *Header, info *streamInfo) *reconstructor {
	return &reconstructor{
		sd:         sd,
		opts:       opts,
		width:      int(h.Width),
		height:     int(h.Height),
		ranges:     info.ranges,
		interlaced: h.Interlaced,
		predictors: info.predictors,
		alphaZero:  info.alphaZero,
		trees:      make([]*ContextTree, len(info.ranges)),
	}
}

func (rc *reconstructor) order() []int {
	var out []int
	for _, p := range planeOrder {
		if p < len(rc.ranges) {
			out = append(out, p)
		}
	}
	return out
}

func (rc *reconstructor) constant(p int) bool {
	return rc.ranges[p].Min == rc.ranges[p].Max
}

// passes returns the number of passes a frame takes: one for scanline
// images, the seed plus one per zoom level for interlaced ones.
func (rc *reconstructor) passes() int {
	if !rc.interlaced {
		return 1
	}
	return maxZoom(rc.width, rc.height) + 1
}

// decodeTrees reads one tree per non-constant plane.
func (rc *reconstructor) decodeTrees() error {
	for _, p := range rc.order() {
		rc.opts.notify(PassEvent{Plane: p, Zoom: -1, State: AwaitingTree})
		if rc.constant(p) {
			continue
		}
		t, err := decodeTree(rc.sd, propRanges(rc.ranges, p, rc.interlaced), rc.opts.MaxTreeDepth, rc.opts.MaxTreeNodes)
		if err != nil {
			return fmt.Errorf("plane %d: %w", p, err)
		}
		rc.trees[p] = t
	}
	return nil
}

func (rc *reconstructor) newPlanes() []Plane {
	planes := make([]Plane, len(rc.ranges))
	for p := range planes {
		planes[p] = Plane{Width: rc.width, Height: rc.height, Data: make([]int32, rc.width*rc.height)}
		if rc.constant(p) {
			v := int32(rc.ranges[p].Min)
			for i := range planes[p].Data {
				planes[p].Data[i] = v
			}
		}
	}
	return planes
}

// decodeFrame reconstructs the planes of one frame in the transformed
// domain.
func (rc *reconstructor) decodeFrame(frame int) ([]Plane, error) {
	planes := rc.newPlanes()
	var err error
	if rc.interlaced {
		err = rc.decodeInterlaced(frame, planes)
	} else {
		err = rc.decodeScanline(frame, planes)
	}
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame, err)
	}
	return planes, nil
}

// pixel decodes the value of plane p at (r, c). props[len(prior):] must
// already hold the plane's own properties.
func (rc *reconstructor) pixel(planes []Plane, p, r, c, guess int, props []int) error {
	idx := r*rc.width + c
	prior := priorPlanes(p, len(planes))
	for i, q := range prior {
		props[i] = int(planes[q].Data[idx])
	}
	if rc.alphaZero && p < 3 && len(planes) > 3 && planes[3].Data[idx] == 0 {
		planes[p].Data[idx] = int32(guess)
		return nil
	}
	rng := rc.ranges[p]
	leaf := rc.trees[p].leafFor(props)
	res, err := rc.sd.decodeInt(leaf, rng.Min-guess, rng.Max-guess)
	if err != nil {
		return err
	}
	v := guess + res
	if v < rng.Min || v > rng.Max {
		return fmt.Errorf("%w: plane %d pixel (%d,%d) value %d outside [%d,%d]", ErrCorruptPixelValue, p, c, r, v, rng.Min, rng.Max)
	}
	planes[p].Data[idx] = int32(v)
	return nil
}

func (rc *reconstructor) decodeScanline(frame int, planes []Plane) error {
	for _, p := range rc.order() {
		if rc.constant(p) {
			rc.opts.notify(PassEvent{Frame: frame, Plane: p, Zoom: -1, State: PlaneComplete})
			continue
		}
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Zoom: -1, State: Reconstructing})
		nprior := len(priorPlanes(p, len(planes)))
		props := make([]int, nprior+2+scanlineDiffs)
		pl := &planes[p]
		for r := 0; r < rc.height; r++ {
			for c := 0; c < rc.width; c++ {
				guess := scanlineProps(pl, r, c, rc.ranges[p], props[nprior:])
				if err := rc.pixel(planes, p, r, c, guess, props); err != nil {
					return err
				}
			}
		}
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Zoom: -1, State: PassComplete})
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Zoom: -1, State: PlaneComplete})
	}
	return nil
}

// decodeInterlaced decodes the seed pixel of every plane, then refines all
// planes one zoom level at a time.
func (rc *reconstructor) decodeInterlaced(frame int, planes []Plane) error {
	top := maxZoom(rc.width, rc.height)
	order := rc.order()
	for _, p := range order {
		if rc.constant(p) {
			continue
		}
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Pass: 0, Zoom: top, State: Reconstructing})
		rng := rc.ranges[p]
		v, err := rc.sd.rac.DecodeUniform(rng.Min, rng.Max)
		if err != nil {
			return err
		}
		planes[p].Data[0] = int32(v)
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Pass: 0, Zoom: top, State: PassComplete})
	}

	props := make([][]int, len(planes))
	for _, p := range order {
		props[p] = make([]int, len(priorPlanes(p, len(planes)))+2+interlacedDiffs)
	}
	for z := top - 1; z >= 0; z-- {
		pass := top - z
		for _, p := range order {
			if rc.constant(p) {
				continue
			}
			rc.opts.notify(PassEvent{Frame: frame, Plane: p, Pass: pass, Zoom: z, State: Reconstructing})
			if err := rc.decodeZoom(planes, p, z, props[p]); err != nil {
				return fmt.Errorf("zoom %d: %w", z, err)
			}
			rc.opts.notify(PassEvent{Frame: frame, Plane: p, Pass: pass, Zoom: z, State: PassComplete})
		}
		slog.Debug("flif: zoom level decoded", slog.Int("frame", frame), slog.Int("zoom", z))
	}
	for _, p := range order {
		rc.opts.notify(PassEvent{Frame: frame, Plane: p, Pass: top, Zoom: 0, State: PlaneComplete})
	}
	return nil
}

// decodeZoom fills the pixels of plane p that first appear at level z:
// the odd rows of the level on even z, the odd columns on odd z.
func (rc *reconstructor) decodeZoom(planes []Plane, p, z int, props []int) error {
	rs, cs := rowStep(z), colStep(z)
	nprior := len(priorPlanes(p, len(planes)))
	pl := &planes[p]
	r0, dr, c0, dc := rs, 2*rs, 0, cs
	if z%2 == 1 {
		r0, dr, c0, dc = 0, rs, cs, 2*cs
	}
	for r := r0; r < rc.height; r += dr {
		for c := c0; c < rc.width; c += dc {
			guess := interlacedProps(pl, z, r, c, rc.predictors[p], rc.ranges[p], props[nprior:])
			if err := rc.pixel(planes, p, r, c, guess, props); err != nil {
				return err
			}
		}
	}
	return nil
}
