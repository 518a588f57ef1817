package codec

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// MaxStringSize is the largest string accepted in either direction (16 MiB).
const MaxStringSize = 16 << 20

// Encoder passes host strings into linear memory using the module's
// allocator.
type Encoder struct {
	mu    sync.Mutex
	views *Views
	alloc wasmbridge.Allocator
	utf8  *encoding.Encoder
}

// NewEncoder creates an encoder. When alloc implements
// wasmbridge.Reallocator the ASCII fast path is used.
func NewEncoder(views *Views, alloc wasmbridge.Allocator) *Encoder {
	return &Encoder{
		views: views,
		alloc: alloc,
		utf8:  unicode.UTF8.NewEncoder(),
	}
}

// Pass copies s into module memory and returns its address and byte length.
//
// The initial allocation is sized in UTF-16 code units and filled byte by
// byte while the input is ASCII. At the first non-ASCII character the
// buffer is reallocated to hold three bytes per remaining code unit and the
// rest is UTF-8 encoded in place. Ill-formed input is replaced with U+FFFD.
func (e *Encoder) Pass(s string) (ptr, length uint32, err error) {
	if e.alloc == nil {
		return 0, 0, errors.Unavailable(errors.PhaseEncode, "allocator")
	}
	if len(s) > MaxStringSize {
		return 0, 0, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Detail("string size %d exceeds maximum %d", len(s), MaxStringSize).
			Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	re, ok := e.alloc.(wasmbridge.Reallocator)
	if !ok {
		return e.passWhole(s)
	}

	n := utf16Len(s)
	ptr, err = e.alloc.Alloc(n, 1)
	if err != nil {
		return 0, 0, errors.AllocationFailed(errors.PhaseEncode, n, 1, err)
	}

	mem, err := e.views.Bytes()
	if err != nil {
		return 0, 0, err
	}
	if uint64(ptr)+uint64(n) > uint64(len(mem)) {
		return 0, 0, errors.OutOfBounds(errors.PhaseEncode, ptr, n, uint32(len(mem)))
	}

	offset := uint32(0)
	for ; offset < n; offset++ {
		c := s[offset]
		if c >= utf8.RuneSelf {
			break
		}
		mem[ptr+offset] = c
	}
	if offset == n {
		return ptr, offset, nil
	}

	rest := s[offset:]
	size := offset + utf16Len(rest)*3
	ptr, err = re.Realloc(ptr, n, size, 1)
	if err != nil {
		return 0, 0, errors.AllocationFailed(errors.PhaseEncode, size, 1, err)
	}

	dst, err := e.views.Slice(ptr+offset, size-offset)
	if err != nil {
		return 0, 0, err
	}
	e.utf8.Reset()
	written, _, err := e.utf8.Transform(dst, []byte(rest), true)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode string")
	}
	return ptr, offset + uint32(written), nil
}

// passWhole encodes s up front and allocates exactly.
func (e *Encoder) passWhole(s string) (uint32, uint32, error) {
	data, err := e.utf8.String(s)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode string")
	}
	size := uint32(len(data))
	ptr, err := e.alloc.Alloc(size, 1)
	if err != nil {
		return 0, 0, errors.AllocationFailed(errors.PhaseEncode, size, 1, err)
	}
	dst, err := e.views.Slice(ptr, size)
	if err != nil {
		return 0, 0, err
	}
	copy(dst, data)
	return ptr, size, nil
}

// utf16Len counts UTF-16 code units. Ill-formed bytes count as one unit
// each, matching the U+FFFD they encode to.
func utf16Len(s string) uint32 {
	var n uint32
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
