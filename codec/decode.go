package codec

import (
	"fmt"
	"unicode/utf8"

	"github.com/wippyai/wasm-bridge/errors"
)

// Decoder reads strings and handle arrays out of linear memory.
type Decoder struct {
	views *Views
}

// NewDecoder creates a decoder.
func NewDecoder(views *Views) *Decoder {
	return &Decoder{views: views}
}

// String decodes length bytes at ptr as UTF-8. Malformed input is an error;
// a leading byte order mark is kept.
func (d *Decoder) String(ptr, length uint32) (string, error) {
	if length > MaxStringSize {
		return "", errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("string size %d exceeds maximum %d", length, MaxStringSize))
	}
	data, err := d.views.Slice(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, data)
	}
	return string(data), nil
}

// Handles reads count 32-bit handles starting at ptr.
func (d *Decoder) Handles(ptr, count uint32) ([]uint32, error) {
	return d.views.Words(ptr, count)
}
