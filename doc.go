// Package wasmbridge runs wasm-bindgen style WebAssembly modules inside a Go
// host process.
//
// A bindgen module expects a browser-like host: it imports a fixed table of
// callbacks under the "wbg" namespace, refers to host objects by small integer
// handles, and exchanges strings as (pointer, length) pairs in its linear
// memory. This library supplies that host on top of wazero.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with core Memory and Allocator interfaces
//	├── bridge/          Instantiate, callback table, exports, entry points
//	├── engine/          wazero integration, memory and allocator adapters
//	├── heap/            Handle table (slot arena with free list)
//	├── codec/           UTF-8 string marshalling and cached memory views
//	├── env/             Host object model: window, document, console, globals
//	├── errors/          Structured error types
//	└── cmd/wbg/         Command line runner
//
// # Quick Start
//
//	b, err := bridge.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	exports, err := b.Instantiate(ctx, bridge.FromFile("app_bg.wasm"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := exports.Main(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(b.Environment().Document().Body().OuterHTML())
//
// # Handles
//
// Host values handed to the module live in a handle table. The first four
// slots after the configured base hold undefined, null, true and false and are
// never reclaimed. Everything else is released when the module drops its
// reference.
//
// # Thread Safety
//
// Bridge is safe for concurrent use. Calls into the guest are serialized
// because a wazero module instance must not be entered concurrently.
package wasmbridge
