// Package guest assembles a synthetic bindgen-style module. It imports the
// wbg callbacks with hashed names, exports the allocator and lifecycle entry
// points the bridge expects, and renders markup into the document body from
// main.
//
// Every import is also re-exported as "fwd:<base name>" with the same
// signature, so tests can drive single callbacks from Go.
package guest

import (
	"strings"

	"github.com/wippyai/wasm-bridge/internal/wasmbin"
)

// Callback describes one wbg import.
type Callback struct {
	Name    string
	Params  int
	Results int
}

// Base returns the import name without its hash suffix.
func (c Callback) Base() string {
	i := strings.LastIndexByte(c.Name, '_')
	if i < 0 || len(c.Name)-i-1 != 16 {
		return c.Name
	}
	return c.Name[:i]
}

// Callbacks lists the imports of the guest in import index order.
var Callbacks = []Callback{
	{"__wbindgen_string_new", 2, 1},
	{"__wbindgen_object_drop_ref", 1, 0},
	{"__wbg_window_5f4faef6c12b79ec", 0, 1},
	{"__wbg_document_f7ace2b956f30a4f", 1, 1},
	{"__wbg_body_674aec4c1c0910cd", 1, 1},
	{"__wbg_insertAdjacentHTML_04bc2b21165e1256", 5, 0},
	{"__wbindgen_debug_string", 2, 0},
	{"__wbindgen_throw", 2, 0},
	{"__wbg_call_cb65541d95d71282", 2, 1},
	{"__wbg_debug_783a3d4910bc24c7", 2, 0},
	{"__wbg_newnoargs_581967eacc0e2604", 2, 1},
	{"__wbg_self_1ff1d729e9aae938", 0, 1},
	{"__wbg_globalThis_1d39714405582d3c", 0, 1},
	{"__wbg_global_651f05c6a0944d1c", 0, 1},
	{"__wbg_instanceof_Window_9029196b662bc42a", 1, 1},
	{"__wbindgen_is_undefined", 1, 1},
	{"__wbindgen_object_clone_ref", 1, 1},
}

// Export names.
const (
	ExportMemory   = "memory"
	ExportMalloc   = "__wbindgen_malloc"
	ExportRealloc  = "__wbindgen_realloc"
	ExportFree     = "__wbindgen_free"
	ExportExnStore = "__wbindgen_exn_store"
	ExportStart    = "__wbindgen_start"
	ExportMain     = "main"
	ExportGrow     = "grow"
)

// Exported counter globals.
const (
	GlobalHeapTop      = "heap_top"
	GlobalLastExn      = "last_exn"
	GlobalExnCount     = "exn_count"
	GlobalStartCount   = "start_count"
	GlobalFreeCount    = "free_count"
	GlobalFreeBytes    = "free_bytes"
	GlobalMallocCount  = "malloc_count"
	GlobalReallocCount = "realloc_count"
)

// Forwarder returns the export name that forwards to the callback with the
// given base name.
func Forwarder(base string) string {
	return "fwd:" + base
}

const (
	heapStart   = 1024
	positionPtr = 16
	markupPtr   = 64

	// DefaultMarkup is what main inserts into the body.
	DefaultMarkup = `<p class="greeting">Hello from wasm</p>`
	// DefaultPosition is the insertAdjacentHTML position main uses.
	DefaultPosition = "beforeend"
)

type options struct {
	markup     string
	position   string
	omit       map[string]bool
	extra      []Callback
	alignedMem bool
	startTraps bool
}

// Option customizes the assembled module.
type Option func(*options)

// WithMarkup sets the markup main inserts.
func WithMarkup(markup string) Option {
	return func(o *options) { o.markup = markup }
}

// WithPosition sets the insertAdjacentHTML position main uses.
func WithPosition(position string) Option {
	return func(o *options) { o.position = position }
}

// Without omits an export.
func Without(export string) Option {
	return func(o *options) { o.omit[export] = true }
}

// WithImport adds an extra wbg import with i32 parameters and results.
func WithImport(name string, params, results int) Option {
	return func(o *options) { o.extra = append(o.extra, Callback{name, params, results}) }
}

// WithAlignedFree makes __wbindgen_free take (ptr, size, align).
func WithAlignedFree() Option {
	return func(o *options) { o.alignedMem = true }
}

// WithTrappingStart makes __wbindgen_start take a window handle it never
// drops and then trap.
func WithTrappingStart() Option {
	return func(o *options) { o.startTraps = true }
}

// Build assembles the module.
func Build(opts ...Option) []byte {
	o := options{
		markup:   DefaultMarkup,
		position: DefaultPosition,
		omit:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return newBuilder(o).build()
}

type builder struct {
	o       options
	m       wasmbin.Module
	imports []Callback
	globals map[string]uint32
	funcs   map[string]uint32
}

func newBuilder(o options) *builder {
	return &builder{
		o:       o,
		globals: make(map[string]uint32),
		funcs:   make(map[string]uint32),
	}
}

func i32s(n int) []wasmbin.ValType {
	out := make([]wasmbin.ValType, n)
	for i := range out {
		out[i] = wasmbin.I32
	}
	return out
}

func (b *builder) sig(params, results int) uint32 {
	return b.m.Type(wasmbin.FuncType{Params: i32s(params), Results: i32s(results)})
}

func (b *builder) global(name string, init int32) {
	b.globals[name] = uint32(len(b.m.Globals))
	b.m.Globals = append(b.m.Globals, wasmbin.Global{Type: wasmbin.I32, Mutable: true, Init: init})
	b.export(name, wasmbin.KindGlobal, b.globals[name])
}

func (b *builder) export(name string, kind byte, idx uint32) {
	if b.o.omit[name] {
		return
	}
	b.m.Exports = append(b.m.Exports, wasmbin.Export{Name: name, Kind: kind, Index: idx})
}

// define appends a function; imports must all be declared first.
func (b *builder) define(name string, params, results int, locals int, body *wasmbin.Code) uint32 {
	idx := uint32(len(b.imports) + len(b.m.Funcs))
	b.m.Funcs = append(b.m.Funcs, wasmbin.Func{
		Type:   b.sig(params, results),
		Locals: i32s(locals),
		Body:   body.Bytes(),
	})
	b.funcs[name] = idx
	b.export(name, wasmbin.KindFunc, idx)
	return idx
}

func (b *builder) imported(base string) uint32 {
	for i, cb := range b.imports {
		if cb.Base() == base {
			return uint32(i)
		}
	}
	panic("guest: unknown import " + base)
}

// bump adds one to a counter global.
func (b *builder) bump(c *wasmbin.Code, name string) {
	g := b.globals[name]
	c.GlobalGet(g).I32Const(1).I32Add().GlobalSet(g)
}

func (b *builder) build() []byte {
	b.imports = append(append([]Callback{}, Callbacks...), b.o.extra...)
	for _, cb := range b.imports {
		b.m.Imports = append(b.m.Imports, wasmbin.Import{
			Module: "wbg",
			Name:   cb.Name,
			Type:   b.sig(cb.Params, cb.Results),
		})
	}

	b.m.Memories = append(b.m.Memories, wasmbin.Memory{Min: 1})
	b.export(ExportMemory, wasmbin.KindMemory, 0)

	b.global(GlobalHeapTop, heapStart)
	b.global(GlobalLastExn, 0)
	b.global(GlobalExnCount, 0)
	b.global(GlobalStartCount, 0)
	b.global(GlobalFreeCount, 0)
	b.global(GlobalFreeBytes, 0)
	b.global(GlobalMallocCount, 0)
	b.global(GlobalReallocCount, 0)

	malloc := b.defineMalloc()
	b.defineRealloc(malloc)
	b.defineFree()
	b.defineExnStore()
	b.defineStart()
	b.defineMain()
	b.defineGrow()
	b.defineForwarders()

	b.m.Data = append(b.m.Data,
		wasmbin.Data{Offset: positionPtr, Bytes: []byte(b.o.position)},
		wasmbin.Data{Offset: markupPtr, Bytes: []byte(b.o.markup)},
	)
	return b.m.Encode()
}

// malloc(size, align) bumps heap_top and grows memory until it fits.
func (b *builder) defineMalloc() uint32 {
	top := b.globals[GlobalHeapTop]
	var c wasmbin.Code
	b.bump(&c, GlobalMallocCount)
	c.GlobalGet(top).LocalTee(2).LocalGet(0).I32Add().GlobalSet(top)
	c.Block().Loop().
		GlobalGet(top).MemorySize().I32Const(16).I32Shl().I32LeU().BrIf(1).
		I32Const(1).MemoryGrow().I32Const(-1).I32Eq().If().Unreachable().End().
		Br(0).
		End().End()
	c.LocalGet(2)
	return b.define(ExportMalloc, 2, 1, 1, &c)
}

// realloc(ptr, old, new, align) keeps ptr when shrinking, otherwise copies
// into a fresh allocation.
func (b *builder) defineRealloc(malloc uint32) {
	var c wasmbin.Code
	b.bump(&c, GlobalReallocCount)
	c.LocalGet(2).LocalGet(1).I32LeU().IfResult(wasmbin.I32).
		LocalGet(0).
		Else().
		LocalGet(2).LocalGet(3).Call(malloc).LocalSet(4).
		LocalGet(4).LocalGet(0).LocalGet(1).MemoryCopy().
		LocalGet(4).
		End()
	b.define(ExportRealloc, 4, 1, 1, &c)
}

// free(ptr, size[, align]) only counts.
func (b *builder) defineFree() {
	params := 2
	if b.o.alignedMem {
		params = 3
	}
	bytes := b.globals[GlobalFreeBytes]
	var c wasmbin.Code
	b.bump(&c, GlobalFreeCount)
	c.GlobalGet(bytes).LocalGet(1).I32Add().GlobalSet(bytes)
	b.define(ExportFree, params, 0, 0, &c)
}

func (b *builder) defineExnStore() {
	var c wasmbin.Code
	b.bump(&c, GlobalExnCount)
	c.LocalGet(0).GlobalSet(b.globals[GlobalLastExn])
	b.define(ExportExnStore, 1, 0, 0, &c)
}

func (b *builder) defineStart() {
	var c wasmbin.Code
	b.bump(&c, GlobalStartCount)
	if b.o.startTraps {
		c.Call(b.imported("__wbg_window")).Drop().Unreachable()
	}
	b.define(ExportStart, 0, 0, 0, &c)
}

// main: window().document.body.insertAdjacentHTML(position, markup), then
// release the three handles.
func (b *builder) defineMain() {
	const win, doc, body = 0, 1, 2
	var c wasmbin.Code
	c.Call(b.imported("__wbg_window")).LocalSet(win)
	c.LocalGet(win).Call(b.imported("__wbg_document")).LocalSet(doc)
	c.LocalGet(doc).Call(b.imported("__wbg_body")).LocalSet(body)
	c.LocalGet(body).
		I32Const(positionPtr).I32Const(int32(len(b.o.position))).
		I32Const(markupPtr).I32Const(int32(len(b.o.markup))).
		Call(b.imported("__wbg_insertAdjacentHTML"))
	drop := b.imported("__wbindgen_object_drop_ref")
	c.LocalGet(body).Call(drop)
	c.LocalGet(doc).Call(drop)
	c.LocalGet(win).Call(drop)
	b.define(ExportMain, 0, 0, 3, &c)
}

// grow(pages) -> previous page count
func (b *builder) defineGrow() {
	var c wasmbin.Code
	c.LocalGet(0).MemoryGrow()
	b.define(ExportGrow, 1, 1, 0, &c)
}

func (b *builder) defineForwarders() {
	for i, cb := range b.imports {
		var c wasmbin.Code
		for p := 0; p < cb.Params; p++ {
			c.LocalGet(uint32(p))
		}
		c.Call(uint32(i))
		b.define(Forwarder(cb.Base()), cb.Params, cb.Results, 0, &c)
	}
}
