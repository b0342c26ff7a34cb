package flif

// Context properties. Every pixel is described to the MANIAC tree by the
// co-located values of the planes decoded before it, the prediction, which
// neighbour the prediction came from and a handful of local gradients.
const (
	scanlineDiffs   = 5
	interlacedDiffs = 6
)

// priorPlanes lists the planes whose co-located value is a property of
// plane p: the colour planes before it and alpha, if present.
func priorPlanes(p, nplanes int) []int {
	if p >= 3 {
		return nil
	}
	var out []int
	for q := 0; q < p; q++ {
		out = append(out, q)
	}
	if nplanes > 3 {
		out = append(out, 3)
	}
	return out
}

// propRanges returns the range of every property of plane p.
func propRanges(ranges []propRange, p int, interlaced bool) []propRange {
	var out []propRange
	for _, q := range priorPlanes(p, len(ranges)) {
		out = append(out, ranges[q])
	}
	r := ranges[p]
	out = append(out, r, propRange{0, 2})
	diffs := scanlineDiffs
	if interlaced {
		diffs = interlacedDiffs
	}
	for i := 0; i < diffs; i++ {
		out = append(out, propRange{r.Min - r.Max, r.Max - r.Min})
	}
	return out
}

func (p *Plane) at(r, c int) int {
	return int(p.Data[r*p.Width+c])
}

// scanlineProps predicts pixel (r, c) from its already decoded neighbours
// (median edge detector) and writes guess, which and the gradients to out.
func scanlineProps(pl *Plane, r, c int, rng propRange, out []int) int {
	var left int
	switch {
	case c > 0:
		left = pl.at(r, c-1)
	case r > 0:
		left = pl.at(r-1, c)
	default:
		left = clip(0, rng.Min, rng.Max)
	}
	top := left
	if r > 0 {
		top = pl.at(r-1, c)
	}
	topLeft, topRight, topTop := top, top, top
	if r > 0 && c > 0 {
		topLeft = pl.at(r-1, c-1)
	}
	if r > 0 && c+1 < pl.Width {
		topRight = pl.at(r-1, c+1)
	}
	if r > 1 {
		topTop = pl.at(r-2, c)
	}
	leftLeft := left
	if c > 1 {
		leftLeft = pl.at(r, c-2)
	}

	guess := clip(median3(left+top-topLeft, left, top), rng.Min, rng.Max)
	which := 2
	if guess == left {
		which = 0
	} else if guess == top {
		which = 1
	}
	out[0] = guess
	out[1] = which
	out[2] = left - topLeft
	out[3] = topLeft - top
	out[4] = top - topRight
	out[5] = topTop - top
	out[6] = leftLeft - left
	return guess
}

// zoom geometry: level 0 is the full image, each level up halves the rows
// (odd levels) or the columns (even levels).
func rowStep(z int) int { return 1 << ((z + 1) / 2) }
func colStep(z int) int { return 1 << (z / 2) }

// maxZoom returns the level at which only pixel (0, 0) remains.
func maxZoom(width, height int) int {
	z := 0
	for rowStep(z) < height || colStep(z) < width {
		z++
	}
	return z
}

// interlacedProps predicts pixel (r, c) of zoom level z. On even levels new
// rows are filled in between known rows (prev is above, next below); on odd
// levels new columns between known columns (prev is left, next right).
func interlacedProps(pl *Plane, z, r, c, predictor int, rng propRange, out []int) int {
	rs, cs := rowStep(z), colStep(z)
	h, w := pl.Height, pl.Width
	var prev, next, side, prevSide, nextSide, prevFar, nextFar int
	if z%2 == 0 {
		prev = pl.at(r-rs, c)
		next = prev
		if r+rs < h {
			next = pl.at(r+rs, c)
		}
		side, prevSide, prevFar = prev, prev, prev
		nextSide, nextFar = next, next
		if c >= cs {
			side = pl.at(r, c-cs)
			prevSide = pl.at(r-rs, c-cs)
			if r+rs < h {
				nextSide = pl.at(r+rs, c-cs)
			}
		}
		if c+cs < w {
			prevFar = pl.at(r-rs, c+cs)
			if r+rs < h {
				nextFar = pl.at(r+rs, c+cs)
			}
		}
	} else {
		prev = pl.at(r, c-cs)
		next = prev
		if c+cs < w {
			next = pl.at(r, c+cs)
		}
		side, prevSide, prevFar = prev, prev, prev
		nextSide, nextFar = next, next
		if r >= rs {
			side = pl.at(r-rs, c)
			prevSide = pl.at(r-rs, c-cs)
			if c+cs < w {
				nextSide = pl.at(r-rs, c+cs)
			}
		}
		if r+rs < h {
			prevFar = pl.at(r+rs, c-cs)
			if c+cs < w {
				nextFar = pl.at(r+rs, c+cs)
			}
		}
	}

	avg := (prev + next) >> 1
	grad1 := side + prev - prevSide
	grad2 := side + next - nextSide
	med := median3(avg, grad1, grad2)
	which := 2
	if med == avg {
		which = 0
	} else if med == grad1 {
		which = 1
	}
	var guess int
	switch predictor {
	case 0:
		guess = avg
	case 1:
		guess = med
	default:
		guess = median3(prev, next, side)
	}
	guess = clip(guess, rng.Min, rng.Max)

	out[0] = guess
	out[1] = which
	out[2] = prev - next
	out[3] = prev - (prevSide+prevFar)>>1
	out[4] = side - (prevSide+nextSide)>>1
	out[5] = next - (nextSide+nextFar)>>1
	out[6] = guess - avg
	return guess
}
