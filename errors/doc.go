// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending import/export name, a field path, the
// host type involved and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCallback, errors.KindThrown).
//		Name("__wbg_body").
//		HostType("object").
//		Detail("TypeError: Cannot read properties of null").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidUTF8(errors.PhaseDecode, data)
//	err := errors.MissingExport("__wbindgen_malloc")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
