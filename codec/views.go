package codec

import (
	"encoding/binary"
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Views caches a byte view of linear memory. The cached slice is replaced
// when it is empty or its length no longer matches the memory size, which
// happens after the module grows its memory.
//
// Handle arrays are read as 32-bit words from the same byte view.
type Views struct {
	mu    sync.Mutex
	buf   wasmbridge.Buffer
	bytes []byte
}

// NewViews creates views over buf. A nil buf yields views that fail with
// KindUnavailable on first use.
func NewViews(buf wasmbridge.Buffer) *Views {
	return &Views{buf: buf}
}

// Bytes returns the current byte view.
func (v *Views) Bytes() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.buf == nil {
		return nil, errors.Unavailable(errors.PhaseRuntime, "linear memory")
	}
	if len(v.bytes) == 0 || uint32(len(v.bytes)) != v.buf.Size() {
		v.bytes = v.buf.Bytes()
	}
	return v.bytes, nil
}

// Reset drops the cached view so the next access rebuilds it.
func (v *Views) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bytes = nil
}

// Slice returns the view of [ptr, ptr+length).
func (v *Views) Slice(ptr, length uint32) ([]byte, error) {
	mem, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	end := uint64(ptr) + uint64(length)
	if end > uint64(len(mem)) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, ptr, length, uint32(len(mem)))
	}
	return mem[ptr:end], nil
}

// Words copies count little-endian words starting at byte address ptr.
func (v *Views) Words(ptr, count uint32) ([]uint32, error) {
	mem, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	size := uint64(count) * 4
	if uint64(ptr)+size > uint64(len(mem)) {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Detail("%d words at %d exceed memory size %d", count, ptr, len(mem)).
			Value(ptr).
			Build()
	}
	b := mem[ptr : uint64(ptr)+size]
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}
