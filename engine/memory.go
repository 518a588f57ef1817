package engine

import (
	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// WazeroMemory wraps wazero memory to implement wasmbridge.Memory
type WazeroMemory struct {
	mem api.Memory
}

// NewMemory wraps an api.Memory.
func NewMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

// Write copies data to offset.
func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

// WriteU32 stores value little-endian at offset.
func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, 4, m.mem.Size())
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}

// Bytes returns a view of the whole of linear memory. The view aliases the
// backing array and goes stale once memory grows.
func (m *WazeroMemory) Bytes() []byte {
	data, _ := m.mem.Read(0, m.mem.Size())
	return data
}

var (
	_ wasmbridge.Memory = (*WazeroMemory)(nil)
	_ wasmbridge.Buffer = (*WazeroMemory)(nil)
)
