package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jpfielding/flif.go/pkg/compress/flif"
)

var (
	ErrUnknownHandle = errors.New("host: unknown buffer handle")
	ErrInvalidSize   = errors.New("host: invalid size")
)

// Handle names a buffer owned by a Host
type Handle = uuid.UUID

// Descriptor describes a successful decode. Pixels names a buffer holding
// the first frame, interleaved, BytesPerSample bytes per sample (big-endian
// for two).
type Descriptor struct {
	Width          int
	Height         int
	Channels       int
	BitDepth       int
	Frames         int
	BytesPerSample int
	Pixels         Handle
}

// DecodeError is the failure half of a decode result.
type DecodeError struct {
	Code    flif.ErrorCode
	Message string

	err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("host: decode failed (%s): %s", e.Code, e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// Host is the boundary an embedding runtime talks to: it hands out byte
// buffers by handle, decodes from them and hands the pixels back the same
// way. It is safe for concurrent use; every decode runs in its own session.
type Host struct {
	opts *flif.Options

	mu      sync.Mutex
	buffers map[Handle][]byte
}

// New creates a host; opts may be nil for the default limits.
func New(opts *flif.Options) *Host {
	return &Host{opts: opts, buffers: map[Handle][]byte{}}
}

// Version returns the format compatibility identifier
func (h *Host) Version() int {
	return flif.Version()
}

// CreateBuffer allocates a zeroed buffer of size bytes.
func (h *Host) CreateBuffer(size int) (Handle, []byte, error) {
	if size < 0 {
		return uuid.Nil, nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	buf := make([]byte, size)
	return h.register(buf), buf, nil
}

func (h *Host) register(buf []byte) Handle {
	id := uuid.New()
	h.mu.Lock()
	h.buffers[id] = buf
	h.mu.Unlock()
	return id
}

// Bytes returns the buffer behind id
func (h *Host) Bytes(id Handle) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, id)
	}
	return buf, nil
}

// DestroyBuffer releases id. Releasing twice is an error, not a crash.
func (h *Host) DestroyBuffer(id Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.buffers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, id)
	}
	delete(h.buffers, id)
	return nil
}

// Live returns the number of buffers not yet released
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffers)
}

// Decode decodes the first size bytes of buffer id. Decode failures come
// back as *DecodeError; handle and size problems as ErrUnknownHandle and
// ErrInvalidSize.
func (h *Host) Decode(id Handle, size int32) (*Descriptor, error) {
	buf, err := h.Bytes(id)
	if err != nil {
		return nil, err
	}
	if size < 0 || int(size) > len(buf) {
		return nil, fmt.Errorf("%w: %d bytes of a %d byte buffer", ErrInvalidSize, size, len(buf))
	}
	img, err := flif.Decode(buf[:size], h.opts)
	if err != nil {
		code := flif.Code(err)
		slog.Debug("host: decode failed", slog.String("handle", id.String()), slog.String("code", code.String()), slog.Any("error", err))
		return nil, &DecodeError{Code: code, Message: err.Error(), err: err}
	}
	pix := img.Frames[0].Pix
	d := &Descriptor{
		Width:          int(img.Header.Width),
		Height:         int(img.Header.Height),
		Channels:       img.Header.Channels,
		BitDepth:       img.Header.BitDepth,
		Frames:         len(img.Frames),
		BytesPerSample: img.BytesPerSample(),
		Pixels:         h.register(pix),
	}
	slog.Debug("host: decoded", slog.String("handle", id.String()), slog.String("pixels", d.Pixels.String()), slog.Int("bytes", len(pix)))
	return d, nil
}
