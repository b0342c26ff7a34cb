package flif

// Options bounds the resources a single decode may use. The zero value of
// any field means its default.
type Options struct {
	MaxTreeDepth     int // deepest MANIAC tree accepted
	MaxTreeNodes     int // largest MANIAC tree accepted, per plane
	MaxPixels        int // width*height*channels*frames
	MaxMetadataBytes int // largest metadata chunk, compressed or inflated

	// Observer, when set, is called on every plane state change.
	Observer func(PassEvent)
}

// DefaultOptions returns the limits used when none are given
func DefaultOptions() *Options {
	return &Options{
		MaxTreeDepth:     512,
		MaxTreeNodes:     1 << 16,
		MaxPixels:        1 << 28,
		MaxMetadataBytes: 16 << 20,
	}
}

func (o *Options) withDefaults() *Options {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	out := *o
	if out.MaxTreeDepth <= 0 {
		out.MaxTreeDepth = d.MaxTreeDepth
	}
	if out.MaxTreeNodes <= 0 {
		out.MaxTreeNodes = d.MaxTreeNodes
	}
	if out.MaxPixels <= 0 {
		out.MaxPixels = d.MaxPixels
	}
	if out.MaxMetadataBytes <= 0 {
		out.MaxMetadataBytes = d.MaxMetadataBytes
	}
	return &out
}

func (o *Options) notify(ev PassEvent) {
	if o.Observer != nil {
		o.Observer(ev)
	}
}
