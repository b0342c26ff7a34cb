package flif

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"io"
)

func init() {
	image.RegisterFormat("flif", string(Magic[:]), DecodeImage, DecodeConfig)
}

// Plane is one channel of a frame, row-major.
type Plane struct {
	Width  int
	Height int
	Data   []int32
}

// Frame is one decoded frame.
type Frame struct {
	Planes []Plane
	// Pix holds the samples interleaved per pixel: one byte per sample for
	// depths up to 8, two bytes big-endian above.
	Pix   []byte
	Delay int // milliseconds, animations only
}

// DecodedImage is the result of a successful decode.
type DecodedImage struct {
	Header     *Header
	Loops      int // 0 = forever, animations only
	Transforms []string
	Frames     []Frame
	Passes     int // passes per frame
}

// Planes returns the planes of the first frame
func (d *DecodedImage) Planes() []Plane {
	return d.Frames[0].Planes
}

// BytesPerSample returns the width of one sample in Pix
func (d *DecodedImage) BytesPerSample() int {
	if d.Header.BitDepth > 8 {
		return 2
	}
	return 1
}

// assemble undoes the transforms of every frame, checks the samples against
// the declared depth and the optional checksum, and interleaves them. With
// alpha-zero the colour of fully transparent pixels is whatever the
// predictor produced: it is clamped to the depth and hashed as 0.
func assemble(h *Header, info *streamInfo, frames [][]Plane, sum *uint32) (*DecodedImage, error) {
	w, ht := int(h.Width), int(h.Height)
	maxv := int32(h.MaxValue())
	img := &DecodedImage{Header: h, Loops: info.loops, Frames: make([]Frame, len(frames))}
	for _, t := range info.transforms {
		img.Transforms = append(img.Transforms, t.Name())
	}
	crc := crc32.NewIEEE()
	var buf [2]byte
	for f, planes := range frames {
		if len(planes) != h.Channels {
			return nil, fmt.Errorf("%w: frame %d has %d planes, header declares %d", ErrChannelCountMismatch, f, len(planes), h.Channels)
		}
		for p, pl := range planes {
			if pl.Width != w || pl.Height != ht || len(pl.Data) != w*ht {
				return nil, fmt.Errorf("%w: frame %d plane %d is %dx%d, image is %dx%d", ErrChannelCountMismatch, f, p, pl.Width, pl.Height, w, ht)
			}
		}
		hidden := transparent(info.alphaZero, planes)
		for i := len(info.transforms) - 1; i >= 0; i-- {
			if err := info.transforms[i].invert(planes, hidden); err != nil {
				return nil, fmt.Errorf("frame %d: %w", f, err)
			}
		}
		for p, pl := range planes {
			for i, v := range pl.Data {
				switch {
				case hidden != nil && p < 3 && hidden[i]:
					pl.Data[i] = min(max(v, 0), maxv)
					v = 0
				case v < 0 || v > maxv:
					return nil, fmt.Errorf("%w: frame %d plane %d sample %d is %d, depth allows [0,%d]", ErrCorruptPixelValue, f, p, i, v, maxv)
				}
				binary.BigEndian.PutUint16(buf[:], uint16(v))
				crc.Write(buf[:])
			}
		}
		img.Frames[f] = Frame{Planes: planes, Pix: interleave(planes, h.BitDepth)}
		if f < len(info.delays) {
			img.Frames[f].Delay = info.delays[f]
		}
	}
	if sum != nil && crc.Sum32() != *sum {
		return nil, fmt.Errorf("%w: checksum 0x%08X, stream says 0x%08X", ErrCorruptPixelValue, crc.Sum32(), *sum)
	}
	return img, nil
}

// transparent marks the pixels whose colour planes were not coded, or
// returns nil when every pixel was.
func transparent(alphaZero bool, planes []Plane) []bool {
	if !alphaZero || len(planes) < 4 {
		return nil
	}
	out := make([]bool, len(planes[3].Data))
	for i, a := range planes[3].Data {
		out[i] = a == 0
	}
	return out
}

func interleave(planes []Plane, depth int) []byte {
	n := len(planes)
	size := len(planes[0].Data)
	if depth <= 8 {
		pix := make([]byte, size*n)
		for p, pl := range planes {
			for i, v := range pl.Data {
				pix[i*n+p] = byte(v)
			}
		}
		return pix
	}
	pix := make([]byte, size*n*2)
	for p, pl := range planes {
		for i, v := range pl.Data {
			binary.BigEndian.PutUint16(pix[(i*n+p)*2:], uint16(v))
		}
	}
	return pix
}

// Image converts frame i to an image.Image: Gray or Gray16 for one channel,
// NRGBA or NRGBA64 otherwise. Depths other than 8 and 16 are scaled to the
// full range of the target.
func (d *DecodedImage) Image(i int) (image.Image, error) {
	if i < 0 || i >= len(d.Frames) {
		return nil, fmt.Errorf("flif: frame %d out of range [0,%d)", i, len(d.Frames))
	}
	planes := d.Frames[i].Planes
	w, h := int(d.Header.Width), int(d.Header.Height)
	rect := image.Rect(0, 0, w, h)
	maxv := d.Header.MaxValue()
	wide := d.Header.BitDepth > 8
	scale := func(v int32) uint16 {
		top := 0xFF
		if wide {
			top = 0xFFFF
		}
		if maxv == top {
			return uint16(v)
		}
		return uint16(int(v) * top / maxv)
	}
	sample := func(p, idx int) uint16 { return scale(planes[p].Data[idx]) }

	switch {
	case len(planes) == 1 && !wide:
		img := image.NewGray(rect)
		for idx := range planes[0].Data {
			img.Pix[idx] = uint8(sample(0, idx))
		}
		return img, nil
	case len(planes) == 1:
		img := image.NewGray16(rect)
		for idx := range planes[0].Data {
			binary.BigEndian.PutUint16(img.Pix[idx*2:], sample(0, idx))
		}
		return img, nil
	}

	rgba := func(idx int) (r, g, b, a uint16) {
		a = 0xFF
		if wide {
			a = 0xFFFF
		}
		switch len(planes) {
		case 2:
			r = sample(0, idx)
			g, b = r, r
			a = sample(1, idx)
		default:
			r, g, b = sample(0, idx), sample(1, idx), sample(2, idx)
			if len(planes) == 4 {
				a = sample(3, idx)
			}
		}
		return
	}
	if !wide {
		img := image.NewNRGBA(rect)
		for idx := 0; idx < w*h; idx++ {
			r, g, b, a := rgba(idx)
			copy(img.Pix[idx*4:], []byte{uint8(r), uint8(g), uint8(b), uint8(a)})
		}
		return img, nil
	}
	img := image.NewNRGBA64(rect)
	for idx := 0; idx < w*h; idx++ {
		r, g, b, a := rgba(idx)
		px := img.Pix[idx*8:]
		binary.BigEndian.PutUint16(px[0:], r)
		binary.BigEndian.PutUint16(px[2:], g)
		binary.BigEndian.PutUint16(px[4:], b)
		binary.BigEndian.PutUint16(px[6:], a)
	}
	return img, nil
}

// colorModel matches the image type Image returns
func colorModel(h *Header) color.Model {
	switch {
	case h.Channels == 1 && h.BitDepth <= 8:
		return color.GrayModel
	case h.Channels == 1:
		return color.Gray16Model
	case h.BitDepth <= 8:
		return color.NRGBAModel
	}
	return color.NRGBA64Model
}

// DecodeImage decodes the first frame of a FLIF stream. It backs
// image.Decode for the "flif" format.
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, nil)
	if err != nil {
		return nil, err
	}
	return img.Image(0)
}

// DecodeConfig returns the dimensions and colour model without decoding
// pixels.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	h, err := DecodeHeader(data, nil)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: colorModel(h), Width: int(h.Width), Height: int(h.Height)}, nil
}
