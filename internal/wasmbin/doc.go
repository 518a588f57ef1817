// Package wasmbin encodes small core modules. It covers the subset of the
// binary format needed to assemble test guests: function imports, defined
// functions, one memory, i32 globals, exports, a start function and active
// data segments.
package wasmbin
