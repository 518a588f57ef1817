package wasmbridge

// Memory writes into WASM linear memory. Writes outside the current size
// fail instead of growing it.
type Memory interface {
	Write(offset uint32, data []byte) error
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in WASM linear memory through the module's
// own allocator exports.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Reallocator is implemented by allocators backed by a module that exports
// a realloc entry point.
type Reallocator interface {
	Allocator
	Realloc(ptr, oldSize, newSize, align uint32) (uint32, error)
}

// Buffer exposes the live backing array of linear memory. Slices returned
// by Bytes alias memory and are invalidated when memory grows.
type Buffer interface {
	MemorySizer
	Bytes() []byte
}
