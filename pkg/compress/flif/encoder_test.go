package flif

import (
	"encoding/binary"
	"hash/crc32"
	"math/rand"
)

// racEncoder is the encoding side of RangeDecoder, used to build test
// streams.
type racEncoder struct {
	out []byte
	low uint32
	rng uint32
}

func newRACEncoder() *racEncoder {
	return &racEncoder{rng: racBaseRange}
}

func (e *racEncoder) encodeBit(bit int, p0 uint16) {
	if p0 < 1 {
		p0 = 1
	} else if p0 >= probOne {
		p0 = probOne - 1
	}
	split := (e.rng >> probBits) * uint32(p0)
	if bit == 0 {
		e.rng = split
	} else {
		e.low += split
		e.rng -= split
	}
	for e.rng <= racMinRange {
		e.shift()
		e.rng <<= 8
	}
}

func (e *racEncoder) shift() {
	if e.low >= racBaseRange {
		i := len(e.out) - 1
		for e.out[i] == 0xFF {
			e.out[i] = 0
			i--
		}
		e.out[i]++
		e.low -= racBaseRange
	}
	e.out = append(e.out, byte(e.low>>16))
	e.low = (e.low & 0xFFFF) << 8
}

func (e *racEncoder) encodeUniform(v, min, max int) {
	lo, span := min, max-min
	for span > 0 {
		med := span / 2
		if v > lo+med {
			e.encodeBit(1, probHalf)
			lo += med + 1
			span -= med + 1
		} else {
			e.encodeBit(0, probHalf)
			span = med
		}
	}
}

func (e *racEncoder) flush() []byte {
	for i := 0; i < 3; i++ {
		e.shift()
	}
	return e.out
}

type symbolEncoder struct {
	rac   *racEncoder
	table *chanceTable
}

func (s *symbolEncoder) bit(c *bitChance, bit int) {
	s.rac.encodeBit(bit, uint16(*c))
	*c = s.table.update(*c, bit)
}

func (s *symbolEncoder) encodeInt(sc *symbolChances, v, min, max int) {
	if min == max {
		return
	}
	offset := 0
	switch {
	case min > 0:
		offset = min
	case max < 0:
		offset = max
	}
	v, min, max = v-offset, min-offset, max-offset
	if v == 0 {
		s.bit(&sc.zero, 1)
		return
	}
	s.bit(&sc.zero, 0)
	positive := v > 0
	if min < 0 && max > 0 {
		if positive {
			s.bit(&sc.sign, 1)
		} else {
			s.bit(&sc.sign, 0)
		}
	}
	amax, sign, a := max, 1, v
	if !positive {
		amax, sign, a = -min, 0, -v
	}
	emax, e := ilog2(amax), ilog2(a)
	for i := 0; i < e; i++ {
		s.bit(&sc.exp[(i<<1)+sign], 0)
	}
	if e < emax {
		s.bit(&sc.exp[(e<<1)+sign], 1)
	}
	have := 1 << e
	for pos := e - 1; pos >= 0; pos-- {
		withBit := have | 1<<pos
		if withBit > amax {
			continue
		}
		b := (a >> pos) & 1
		s.bit(&sc.mant[pos], b)
		if b == 1 {
			have = withBit
		}
	}
}

// testNode is a MANIAC tree written out by the test encoder.
type testNode struct {
	prop  int // -1 for a leaf
	count int
	split int
	kids  [2]*testNode // property > split, property <= split
}

func leafNode() *testNode { return &testNode{prop: -1} }

// balancedTree splits on properties in turn at the midpoint of their current
// range until depth runs out or nothing can be split.
func balancedTree(ranges []propRange, depth, count int) *testNode {
	if depth == 0 {
		return leafNode()
	}
	for i := range ranges {
		prop := (depth + i) % len(ranges)
		r := ranges[prop]
		if r.Min >= r.Max {
			continue
		}
		split := (r.Min + r.Max) >> 1
		above := append([]propRange(nil), ranges...)
		above[prop].Min = split + 1
		below := append([]propRange(nil), ranges...)
		below[prop].Max = split
		return &testNode{
			prop:  prop,
			count: count,
			split: split,
			kids:  [2]*testNode{balancedTree(above, depth-1, count), balancedTree(below, depth-1, count)},
		}
	}
	return leafNode()
}

func encodeTree(se *symbolEncoder, root *testNode, ranges []propRange) *ContextTree {
	meta := newTreeMeta()
	t := &ContextTree{nodes: []treeNode{{}}}
	var walk func(n *testNode, pos int, ranges []propRange)
	walk = func(n *testNode, pos int, ranges []propRange) {
		se.encodeInt(&meta.property, n.prop+1, 0, len(ranges))
		t.nodes[pos].property = n.prop
		if n.prop < 0 {
			return
		}
		r := ranges[n.prop]
		se.encodeInt(&meta.count, n.count, treeMinCount, treeMaxCount)
		se.encodeInt(&meta.split, n.split, r.Min, r.Max-1)
		child := len(t.nodes)
		t.nodes[pos].count = n.count
		t.nodes[pos].splitVal = n.split
		t.nodes[pos].child = child
		t.nodes = append(t.nodes, treeNode{}, treeNode{})
		above := append([]propRange(nil), ranges...)
		above[n.prop].Min = n.split + 1
		below := append([]propRange(nil), ranges...)
		below[n.prop].Max = n.split
		walk(n.kids[0], child, above)
		walk(n.kids[1], child+1, below)
	}
	walk(root, 0, ranges)
	t.leaves = []symbolChances{newSymbolChances()}
	return t
}

// testImage describes a stream for the test encoder. Frames hold planes in
// the original (untransformed) domain.
type testImage struct {
	width, height int
	channels      int
	depth         int
	interlaced    bool
	frames        [][][]int32
	delays        []int
	loops         int
	alphaZero     bool
	cutoff        int // 0 = default chances
	alphaDiv      int
	ycocg         bool
	permute       []int
	subtract      bool
	bounds        bool
	predictors    []int
	treeDepth     int
	treeCount     int
	checksum      bool
	badChecksum   bool
	chunks        []Chunk
}

func (ti *testImage) animated() bool {
	return len(ti.frames) > 1
}

func (ti *testImage) maxValue() int {
	return 1<<ti.depth - 1
}

func putVarint(out []byte, v uint32) []byte {
	var groups []byte
	for {
		groups = append([]byte{byte(v & 0x7F)}, groups...)
		v >>= 7
		if v == 0 {
			break
		}
	}
	for i := 0; i < len(groups)-1; i++ {
		groups[i] |= 0x80
	}
	return append(out, groups...)
}

// mainHeader writes the byte-aligned header of ti.
func (ti *testImage) mainHeader() []byte {
	out := append([]byte(nil), Magic[:]...)
	format := byte(formatStill)
	switch {
	case ti.animated() && ti.interlaced:
		format = formatAnimatedInterlaced
	case ti.animated():
		format = formatAnimated
	case ti.interlaced:
		format = formatStillInterlaced
	}
	out = append(out, format<<4|byte(ti.channels))
	switch ti.depth {
	case 8:
		out = append(out, depth8)
	case 16:
		out = append(out, depth16)
	default:
		out = append(out, depthCustom)
	}
	out = putVarint(out, uint32(ti.width-1))
	out = putVarint(out, uint32(ti.height-1))
	if ti.animated() {
		out = putVarint(out, uint32(len(ti.frames)-2))
	}
	for _, c := range ti.chunks {
		out = append(out, c.Name...)
		out = putVarint(out, uint32(len(c.Data)))
		out = append(out, c.Data...)
	}
	return append(out, 0)
}

func clonePlanes(planes [][]int32) [][]int32 {
	out := make([][]int32, len(planes))
	for p := range planes {
		out[p] = append([]int32(nil), planes[p]...)
	}
	return out
}

// forward applies the transforms of ti to one frame.
func (ti *testImage) forward(planes [][]int32) [][]int32 {
	planes = clonePlanes(planes)
	if ti.ycocg {
		r, g, b := planes[0], planes[1], planes[2]
		for i := range r {
			co := r[i] - b[i]
			tmp := b[i] + co>>1
			cg := g[i] - tmp
			r[i], g[i], b[i] = tmp+cg>>1, co, cg
		}
	}
	if ti.permute != nil {
		stored := make([][]int32, len(planes))
		for p, src := range ti.permute {
			stored[p] = append([]int32(nil), planes[src]...)
		}
		if ti.subtract {
			for p := 1; p < len(stored) && p < 3; p++ {
				for i := range stored[p] {
					stored[p][i] -= stored[0][i]
				}
			}
		}
		planes = stored
	}
	return planes
}

// encode writes ti as a FLIF stream.
func (ti *testImage) encode() []byte {
	out := ti.mainHeader()
	rac := newRACEncoder()
	if ti.depth != 8 && ti.depth != 16 {
		rac.encodeUniform(ti.depth, 1, maxCustomDepth)
	}
	if ti.channels == 4 {
		rac.encodeUniform(boolInt(ti.alphaZero), 0, 1)
	}
	if ti.animated() {
		rac.encodeUniform(ti.loops, 0, maxLoops)
		for f := range ti.frames {
			d := 0
			if f < len(ti.delays) {
				d = ti.delays[f]
			}
			rac.encodeUniform(d, 0, maxFrameDelay)
		}
	}
	cutoff, alphaDiv := DefaultCutoff, DefaultAlphaDivisor
	if ti.cutoff > 0 {
		cutoff, alphaDiv = ti.cutoff, ti.alphaDiv
		rac.encodeUniform(1, 0, 1)
		rac.encodeUniform(cutoff, minCutoff, maxCutoff)
		rac.encodeUniform(alphaDiv, minAlphaDiv, maxAlphaDiv)
	} else {
		rac.encodeUniform(0, 0, 1)
	}

	ranges := make([]propRange, ti.channels)
	for p := range ranges {
		ranges[p] = propRange{0, ti.maxValue()}
	}
	frames := make([][][]int32, len(ti.frames))
	for f := range ti.frames {
		frames[f] = ti.forward(ti.frames[f])
	}
	if ti.ycocg {
		rac.encodeUniform(1, 0, 1)
		rac.encodeUniform(TransformYCoCg, 0, maxTransformID)
		t := &ycocg{}
		if err := t.load(nil, ranges); err != nil {
			panic(err)
		}
		ranges = t.ranges(ranges)
	}
	if ti.permute != nil {
		rac.encodeUniform(1, 0, 1)
		rac.encodeUniform(TransformPermutePlanes, 0, maxTransformID)
		rac.encodeUniform(boolInt(ti.subtract), 0, 1)
		for _, v := range ti.permute {
			rac.encodeUniform(v, 0, ti.channels-1)
		}
		t := &permutePlanes{subtract: ti.subtract, perm: ti.permute}
		ranges = t.ranges(ranges)
	}
	if ti.bounds {
		rac.encodeUniform(1, 0, 1)
		rac.encodeUniform(TransformBounds, 0, maxTransformID)
		b := make([]propRange, len(ranges))
		for p := range b {
			b[p] = propRange{Min: ranges[p].Max, Max: ranges[p].Min}
			for _, planes := range frames {
				for _, v := range planes[p] {
					b[p].Min = min(b[p].Min, int(v))
					b[p].Max = max(b[p].Max, int(v))
				}
			}
			rac.encodeUniform(b[p].Min, ranges[p].Min, ranges[p].Max)
			rac.encodeUniform(b[p].Max, b[p].Min, ranges[p].Max)
		}
		ranges = b
	}
	rac.encodeUniform(0, 0, 1)

	predictors := ti.predictors
	if ti.interlaced {
		if predictors == nil {
			predictors = make([]int, ti.channels)
		}
		for _, pr := range predictors {
			rac.encodeUniform(pr, 0, maxPredictor)
		}
	}

	se := &symbolEncoder{rac: rac, table: newChanceTable(cutoff, alphaDiv)}
	rc := &reconstructor{width: ti.width, height: ti.height, ranges: ranges}
	trees := make([]*ContextTree, ti.channels)
	for _, p := range rc.order() {
		if rc.constant(p) {
			continue
		}
		pr := propRanges(ranges, p, ti.interlaced)
		trees[p] = encodeTree(se, balancedTree(pr, ti.treeDepth, ti.treeCount), pr)
	}

	for _, planes := range frames {
		pls := toPlanes(planes, ti.width, ti.height)
		if ti.interlaced {
			ti.encodeInterlaced(se, rc, trees, predictors, pls)
		} else {
			ti.encodeScanline(se, rc, trees, pls)
		}
	}

	if ti.checksum {
		crc := crc32.NewIEEE()
		var buf [2]byte
		for _, planes := range ti.frames {
			for p, pl := range planes {
				for i, v := range pl {
					if ti.hidden(planes, p, i) {
						v = 0
					}
					binary.BigEndian.PutUint16(buf[:], uint16(v))
					crc.Write(buf[:])
				}
			}
		}
		sum := crc.Sum32()
		if ti.badChecksum {
			sum ^= 1
		}
		rac.encodeUniform(1, 0, 1)
		rac.encodeUniform(int(sum>>16), 0, 0xFFFF)
		rac.encodeUniform(int(sum&0xFFFF), 0, 0xFFFF)
	} else {
		rac.encodeUniform(0, 0, 1)
	}
	return append(out, rac.flush()...)
}

// hidden reports whether sample i of plane p carries no coded colour.
func (ti *testImage) hidden(frame [][]int32, p, i int) bool {
	return ti.alphaZero && p < 3 && len(frame) > 3 && frame[3][i] == 0
}

// visible returns data, plane p of frame, with the samples the stream
// drops replaced by -1.
func (ti *testImage) visible(frame [][]int32, p int, data []int32) []int32 {
	out := append([]int32(nil), data...)
	for i := range out {
		if ti.hidden(frame, p, i) {
			out[i] = -1
		}
	}
	return out
}

// encodePixel codes the value of plane p at (r, c). Invisible pixels take
// the guess, as the decoder does.
func (ti *testImage) encodePixel(se *symbolEncoder, rng propRange, tree *ContextTree, planes []Plane, p, r, c, guess int, props []int) {
	idx := r*ti.width + c
	for i, q := range priorPlanes(p, len(planes)) {
		props[i] = int(planes[q].Data[idx])
	}
	if ti.alphaZero && p < 3 && len(planes) > 3 && planes[3].Data[idx] == 0 {
		planes[p].Data[idx] = int32(guess)
		return
	}
	leaf := tree.leafFor(props)
	se.encodeInt(leaf, int(planes[p].Data[idx])-guess, rng.Min-guess, rng.Max-guess)
}

func (ti *testImage) encodeScanline(se *symbolEncoder, rc *reconstructor, trees []*ContextTree, planes []Plane) {
	for _, p := range rc.order() {
		if rc.constant(p) {
			continue
		}
		nprior := len(priorPlanes(p, len(planes)))
		props := make([]int, nprior+2+scanlineDiffs)
		for r := 0; r < ti.height; r++ {
			for c := 0; c < ti.width; c++ {
				guess := scanlineProps(&planes[p], r, c, rc.ranges[p], props[nprior:])
				ti.encodePixel(se, rc.ranges[p], trees[p], planes, p, r, c, guess, props)
			}
		}
	}
}

func (ti *testImage) encodeInterlaced(se *symbolEncoder, rc *reconstructor, trees []*ContextTree, predictors []int, planes []Plane) {
	top := maxZoom(ti.width, ti.height)
	for _, p := range rc.order() {
		if rc.constant(p) {
			continue
		}
		se.rac.encodeUniform(int(planes[p].Data[0]), rc.ranges[p].Min, rc.ranges[p].Max)
	}
	for z := top - 1; z >= 0; z-- {
		rs, cs := rowStep(z), colStep(z)
		r0, dr, c0, dc := rs, 2*rs, 0, cs
		if z%2 == 1 {
			r0, dr, c0, dc = 0, rs, cs, 2*cs
		}
		for _, p := range rc.order() {
			if rc.constant(p) {
				continue
			}
			nprior := len(priorPlanes(p, len(planes)))
			props := make([]int, nprior+2+interlacedDiffs)
			for r := r0; r < ti.height; r += dr {
				for c := c0; c < ti.width; c += dc {
					guess := interlacedProps(&planes[p], z, r, c, predictors[p], rc.ranges[p], props[nprior:])
					ti.encodePixel(se, rc.ranges[p], trees[p], planes, p, r, c, guess, props)
				}
			}
		}
	}
}

func toPlanes(data [][]int32, w, h int) []Plane {
	out := make([]Plane, len(data))
	for p := range data {
		out[p] = Plane{Width: w, Height: h, Data: data[p]}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Test image content.

func gradientPlane(w, h, maxv, phase int) []int32 {
	out := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = int32((x*7 + y*3 + phase*11) % (maxv + 1))
		}
	}
	return out
}

func noisePlane(rnd *rand.Rand, w, h, maxv int) []int32 {
	out := make([]int32, w*h)
	for i := range out {
		out[i] = int32(rnd.Intn(maxv + 1))
	}
	return out
}

func constPlane(w, h int, v int32) []int32 {
	out := make([]int32, w*h)
	for i := range out {
		out[i] = v
	}
	return out
}

// transparentFrame is a mixedFrame with every third pixel fully transparent.
func transparentFrame(seed int64, w, h, depth int) [][]int32 {
	planes := mixedFrame(seed, w, h, 4, depth)
	for i := range planes[3] {
		if i%3 == 0 {
			planes[3][i] = 0
		}
	}
	return planes
}

// mixedFrame returns channels planes mixing gradients and noise.
func mixedFrame(seed int64, w, h, channels, depth int) [][]int32 {
	rnd := rand.New(rand.NewSource(seed))
	maxv := 1<<depth - 1
	planes := make([][]int32, channels)
	for p := range planes {
		if p%2 == 0 {
			planes[p] = gradientPlane(w, h, maxv, p)
		} else {
			planes[p] = noisePlane(rnd, w, h, maxv)
		}
	}
	return planes
}
