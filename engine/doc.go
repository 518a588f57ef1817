// Package engine wraps wazero for bindgen-style modules.
//
// # Architecture
//
//	WazeroEngine   - Owns a wazero runtime and optional compilation cache
//	WazeroModule   - A compiled core module, lists its imports
//	HostModule     - Go functions exported under an import namespace
//	WazeroInstance - A running instance with memory and allocator adapters
//
// # Instantiation Flow
//
//  1. WazeroEngine.Compile or CompileStream validates and compiles the binary
//  2. WazeroModule.Imports describes what the host must provide
//  3. HostModule.Instantiate registers the host functions
//  4. WazeroModule.Instantiate links against them without running a start
//     function; the caller decides when to run __wbindgen_start
//
// # Allocator
//
// WazeroInstance.Allocator adapts __wbindgen_malloc, __wbindgen_realloc and
// __wbindgen_free. The number of arguments passed follows each export's
// declared arity, so modules built with or without alignment parameters
// both work.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use.
// WazeroInstance is NOT thread-safe and should be used by a single goroutine.
//
// # Known Limitations
//
// Memory64 is not supported; wazero v1.10.1 does not implement it.
package engine
