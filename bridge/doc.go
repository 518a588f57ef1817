// Package bridge hosts wasm-bindgen style modules.
//
// A Bridge owns a wazero runtime, a handle table and a host environment.
// Instantiate resolves the module's "wbg" imports against the callback
// table, links the module and runs __wbindgen_start once. Later calls return
// the same Exports.
//
// # Sources
//
//	FromBytes     raw module bytes
//	FromCompiled  a module compiled on Bridge.Engine
//	FromResponse  an *http.Response, streamed when served as application/wasm
//	FromReader    a reader with an explicit content type
//	FromURL       fetched with the configured HTTP client
//	FromFile      a file path; a nil source means DefaultPath
//
// Response-like sources served with any other content type fall back to a
// buffered compile and log a warning.
//
// # Callbacks
//
// Import names carry a hash suffix which is ignored when matching. Catching
// callbacks (DOM mutations, globals, function calls) report failures by
// storing the thrown value through __wbindgen_exn_store; the rest trap the
// export that triggered them. __wbindgen_throw always traps with an error of
// kind errors.KindThrown.
//
// # Package-level API
//
// Init, InitSync and Main operate on a lazily created default bridge,
// mirroring the generated glue's module-level functions.
package bridge
