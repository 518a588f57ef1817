// Package env provides the host environment a bindgen module talks to.
//
// Values handed across the boundary are plain Go values: Undefined, nil for
// null, bool, float64, string, and pointers to Symbol, Function, Object,
// Error, Window, Global, Document and Element. Arrays are []Value.
//
// # Environment
//
// An Environment bundles the global object, the document, the console and a
// registry of function bodies:
//
//	e, err := env.New(
//	    env.WithContext(env.ContextWindow),
//	    env.WithConsole(env.NewRecordingConsole()),
//	)
//	win, _ := e.Lookup("window")           // *env.Window
//	_, err = e.Lookup("global")            // ReferenceError in a window context
//
// Which global names resolve depends on the context:
//
//	ContextWindow  self, window, globalThis
//	ContextWorker  self, globalThis
//	ContextNode    globalThis, global
//
// # Document
//
// Documents are parsed and rendered with golang.org/x/net/html.
// Element.InsertAdjacentHTML accepts beforebegin, afterbegin, beforeend and
// afterend and raises DOM exceptions for unknown positions and parentless
// elements.
//
// # Functions
//
// There is no script interpreter. Environment.NewFunction resolves a body
// against the Registry; "return this" is always available.
//
// # Debug strings
//
// DebugString renders any value for diagnostics:
//
//	env.DebugString([]env.Value{1.0, "a", nil})  // [1, "a", null]
//	env.DebugString(env.NewFunction("foo", nil)) // Function(foo)
//	env.DebugString(env.ObjectOf("a", 1.0))      // Object({"a":1})
package env
