package bridge

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

// Outcome is what a callback produced: raw results on success, or the value
// it threw.
type Outcome struct {
	Thrown  env.Value
	Results []uint64
	Failed  bool
}

func ok(results ...uint64) Outcome {
	return Outcome{Results: results}
}

func fail(v env.Value) Outcome {
	return Outcome{Thrown: v, Failed: true}
}

var (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)

// callback is one entry of the wbg import table. Catching callbacks hand
// failures to __wbindgen_exn_store; the others trap the running export.
type callback struct {
	fn       func(ctx context.Context, ex *Exports, args []uint64) Outcome
	name     string
	params   []api.ValueType
	results  []api.ValueType
	catching bool
}

func sig(params ...api.ValueType) []api.ValueType { return params }

// callbacks is keyed by import base name.
var callbacks = indexCallbacks([]*callback{
	{name: "__wbindgen_object_drop_ref", params: sig(i32), fn: dropRef},
	{name: "__wbindgen_object_clone_ref", params: sig(i32), results: sig(i32), fn: cloneRef},
	{name: "__wbindgen_string_new", params: sig(i32, i32), results: sig(i32), fn: stringNew},
	{name: "__wbindgen_number_new", params: sig(f64), results: sig(i32), fn: numberNew},
	{name: "__wbindgen_string_get", params: sig(i32, i32), fn: stringGet},
	{name: "__wbindgen_number_get", params: sig(i32, i32), fn: numberGet},
	{name: "__wbindgen_boolean_get", params: sig(i32), results: sig(i32), fn: booleanGet},
	{name: "__wbindgen_is_undefined", params: sig(i32), results: sig(i32), fn: typeProbe(env.IsUndefined)},
	{name: "__wbindgen_is_null", params: sig(i32), results: sig(i32), fn: typeProbe(env.IsNull)},
	{name: "__wbindgen_is_string", params: sig(i32), results: sig(i32), fn: typeProbe(isType("string"))},
	{name: "__wbindgen_is_function", params: sig(i32), results: sig(i32), fn: typeProbe(isType("function"))},
	{name: "__wbindgen_is_object", params: sig(i32), results: sig(i32), fn: typeProbe(env.IsObject)},
	{name: "__wbindgen_debug_string", params: sig(i32, i32), fn: debugString},
	{name: "__wbindgen_throw", params: sig(i32, i32), fn: throw},
	{name: "__wbg_debug", params: sig(i32, i32), fn: console(env.LevelDebug)},
	{name: "__wbg_log", params: sig(i32, i32), fn: console(env.LevelLog)},
	{name: "__wbg_info", params: sig(i32, i32), fn: console(env.LevelInfo)},
	{name: "__wbg_warn", params: sig(i32, i32), fn: console(env.LevelWarn)},
	{name: "__wbg_error", params: sig(i32, i32), fn: console(env.LevelError)},
	{name: "__wbg_instanceof_Window", params: sig(i32), results: sig(i32), fn: typeProbe(isWindow)},
	{name: "__wbg_instanceof_HtmlElement", params: sig(i32), results: sig(i32), fn: typeProbe(env.IsHTMLElement)},
	{name: "__wbg_document", params: sig(i32), results: sig(i32), fn: property("document")},
	{name: "__wbg_body", params: sig(i32), results: sig(i32), fn: property("body")},
	{name: "__wbg_insertAdjacentHTML", params: sig(i32, i32, i32, i32, i32), catching: true, fn: insertAdjacentHTML},
	{name: "__wbg_createElement", params: sig(i32, i32, i32), results: sig(i32), catching: true, fn: createElement},
	{name: "__wbg_appendChild", params: sig(i32, i32), results: sig(i32), catching: true, fn: appendChild},
	{name: "__wbg_setinnerHTML", params: sig(i32, i32, i32), fn: setInnerHTML},
	{name: "__wbg_newnoargs", params: sig(i32, i32), results: sig(i32), fn: newNoArgs},
	{name: "__wbg_call", params: sig(i32, i32), results: sig(i32), catching: true, fn: call},
	{name: "__wbg_self", results: sig(i32), catching: true, fn: global("self")},
	{name: "__wbg_window", results: sig(i32), catching: true, fn: global("window")},
	{name: "__wbg_globalThis", results: sig(i32), catching: true, fn: global("globalThis")},
	{name: "__wbg_global", results: sig(i32), catching: true, fn: global("global")},
})

func indexCallbacks(list []*callback) map[string]*callback {
	m := make(map[string]*callback, len(list))
	for _, cb := range list {
		m[cb.name] = cb
	}
	return m
}

// CallbackNames returns the base names of every supported import.
func CallbackNames() []string {
	names := make([]string, 0, len(callbacks))
	for name := range callbacks {
		names = append(names, name)
	}
	return names
}

// hostFunc adapts cb to wazero. Arguments are read off the stack before
// results are written back.
func (ex *Exports) hostFunc(importName string, cb *callback) api.GoModuleFunc {
	nparams := len(cb.params)
	nresults := len(cb.results)
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		out := cb.fn(ctx, ex, stack[:nparams])
		if !out.Failed {
			copy(stack[:nresults], out.Results)
			return
		}

		if !cb.catching {
			panic(ex.hostError(importName, out.Thrown))
		}

		ex.logger.Debug("callback threw",
			zap.String("import", importName),
			zap.String("value", env.DebugString(out.Thrown)))
		thrown := out.Thrown
		if err, isErr := thrown.(error); isErr {
			thrown = env.FromError(err)
		}
		if err := ex.storeException(ctx, thrown); err != nil {
			panic(err)
		}
		for i := 0; i < nresults; i++ {
			stack[i] = 0
		}
	}
}

// hostError turns a thrown value into the error the export call returns.
func (ex *Exports) hostError(importName string, v env.Value) error {
	if err, isErr := v.(*errors.Error); isErr {
		return err
	}
	b := errors.New(errors.PhaseCallback, errors.KindThrown).
		Name(importName).
		HostType(env.TypeOf(v)).
		Value(v).
		Detail("%s", env.DebugString(v))
	if err, isErr := v.(error); isErr {
		b.Cause(err)
	}
	return b.Build()
}

func (ex *Exports) get(raw uint64) (env.Value, error) {
	h := uint32(raw)
	v, found := ex.heap.Get(heap.Handle(h))
	if !found {
		return nil, errors.InvalidHandle(errors.PhaseCallback, h)
	}
	return v, nil
}

func (ex *Exports) add(v env.Value) uint64 {
	return uint64(ex.heap.Add(v))
}

func (ex *Exports) str(ptr, length uint64) (string, error) {
	return ex.decoder.String(uint32(ptr), uint32(length))
}

// writeSlice stores a (ptr, len) pair in the two words at retptr.
func (ex *Exports) writeSlice(retptr uint64, ptr, length uint32) error {
	mem, err := ex.mem()
	if err != nil {
		return err
	}
	at := uint32(retptr) &^ 3
	if err := mem.WriteU32(at+4, length); err != nil {
		return err
	}
	return mem.WriteU32(at, ptr)
}

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func dropRef(_ context.Context, ex *Exports, args []uint64) Outcome {
	ex.heap.Drop(heap.Handle(uint32(args[0])))
	return ok()
}

func cloneRef(_ context.Context, ex *Exports, args []uint64) Outcome {
	h, found := ex.heap.Clone(heap.Handle(uint32(args[0])))
	if !found {
		return fail(errors.InvalidHandle(errors.PhaseCallback, uint32(args[0])))
	}
	return ok(uint64(h))
}

func stringNew(_ context.Context, ex *Exports, args []uint64) Outcome {
	s, err := ex.str(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return ok(ex.add(s))
}

func numberNew(_ context.Context, ex *Exports, args []uint64) Outcome {
	return ok(ex.add(math.Float64frombits(args[0])))
}

func stringGet(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[1])
	if err != nil {
		return fail(err)
	}
	var ptr, length uint32
	if s, isStr := v.(string); isStr {
		if ptr, length, err = ex.encoder.Pass(s); err != nil {
			return fail(err)
		}
	}
	if err := ex.writeSlice(args[0], ptr, length); err != nil {
		return fail(err)
	}
	return ok()
}

// numberGet writes the number at retptr+8 and a presence flag at retptr.
func numberGet(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[1])
	if err != nil {
		return fail(err)
	}
	var n float64
	present := env.TypeOf(v) == "number"
	if present {
		n, _ = env.ToNumber(v)
	}
	mem, err := ex.mem()
	if err != nil {
		return fail(err)
	}
	retptr := uint32(args[0])
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], math.Float64bits(n))
	if err := mem.Write(retptr+8, slot[:]); err != nil {
		return fail(err)
	}
	if err := mem.WriteU32(retptr&^3, uint32(flag(present))); err != nil {
		return fail(err)
	}
	return ok()
}

// booleanGet returns 0 or 1 for booleans and 2 for anything else.
func booleanGet(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	b, isBool := v.(bool)
	if !isBool {
		return ok(2)
	}
	return ok(flag(b))
}

func typeProbe(pred func(env.Value) bool) func(context.Context, *Exports, []uint64) Outcome {
	return func(_ context.Context, ex *Exports, args []uint64) Outcome {
		v, err := ex.get(args[0])
		if err != nil {
			return fail(err)
		}
		return ok(flag(pred(v)))
	}
}

func isType(typ string) func(env.Value) bool {
	return func(v env.Value) bool { return env.TypeOf(v) == typ }
}

func isWindow(v env.Value) bool {
	_, is := v.(*env.Window)
	return is
}

func debugString(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[1])
	if err != nil {
		return fail(err)
	}
	s, err := env.FormatDebugString(v)
	if err != nil {
		return fail(err)
	}
	ptr, length, err := ex.encoder.Pass(s)
	if err != nil {
		return fail(err)
	}
	if err := ex.writeSlice(args[0], ptr, length); err != nil {
		return fail(err)
	}
	return ok()
}

func throw(_ context.Context, ex *Exports, args []uint64) Outcome {
	msg, err := ex.str(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return fail(errors.Thrown(msg))
}

// console takes ownership of the handle array at ptr, frees it and writes
// the values to the environment console.
func console(level env.Level) func(context.Context, *Exports, []uint64) Outcome {
	return func(_ context.Context, ex *Exports, args []uint64) Outcome {
		ptr, count := uint32(args[0]), uint32(args[1])
		handles, err := ex.decoder.Handles(ptr, count)
		if err != nil {
			return fail(err)
		}
		values := make([]env.Value, len(handles))
		for i, h := range handles {
			v, _ := ex.heap.Take(heap.Handle(h))
			values[i] = v
		}
		if alloc := ex.instance.Allocator(); alloc != nil {
			alloc.Free(ptr, count*4, 4)
		}
		ex.env.Console().Write(level, values)
		return ok()
	}
}

// property reads a named property; undefined and null come back as 0.
// Reading from an undefined or null receiver is a TypeError.
func property(name string) func(context.Context, *Exports, []uint64) Outcome {
	return func(_ context.Context, ex *Exports, args []uint64) Outcome {
		v, err := ex.get(args[0])
		if err != nil {
			return fail(err)
		}
		if env.IsNullish(v) {
			return fail(env.TypeError("Cannot read properties of " + env.DebugString(v) +
				" (reading '" + name + "')"))
		}
		p := env.Property(v, name)
		if env.IsNullish(p) {
			return ok(0)
		}
		return ok(ex.add(p))
	}
}

func element(v env.Value, method string) (*env.Element, error) {
	el, is := v.(*env.Element)
	if !is {
		return nil, env.TypeError(env.DebugString(v) + "." + method + " is not a function")
	}
	return el, nil
}

func insertAdjacentHTML(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	el, err := element(v, "insertAdjacentHTML")
	if err != nil {
		return fail(err)
	}
	position, err := ex.str(args[1], args[2])
	if err != nil {
		return fail(err)
	}
	markup, err := ex.str(args[3], args[4])
	if err != nil {
		return fail(err)
	}
	if err := el.InsertAdjacentHTML(position, markup); err != nil {
		return fail(err)
	}
	return ok()
}

func createElement(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	doc, is := v.(*env.Document)
	if !is {
		return fail(env.TypeError(env.DebugString(v) + ".createElement is not a function"))
	}
	tag, err := ex.str(args[1], args[2])
	if err != nil {
		return fail(err)
	}
	el, err := doc.CreateElement(tag)
	if err != nil {
		return fail(err)
	}
	return ok(ex.add(el))
}

func appendChild(_ context.Context, ex *Exports, args []uint64) Outcome {
	pv, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	parent, err := element(pv, "appendChild")
	if err != nil {
		return fail(err)
	}
	cv, err := ex.get(args[1])
	if err != nil {
		return fail(err)
	}
	child, is := cv.(*env.Element)
	if !is {
		return fail(env.TypeError("Failed to execute 'appendChild': parameter 1 is not of type 'Node'."))
	}
	added, err := parent.AppendChild(child)
	if err != nil {
		return fail(err)
	}
	return ok(ex.add(added))
}

func setInnerHTML(_ context.Context, ex *Exports, args []uint64) Outcome {
	v, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	el, err := element(v, "innerHTML")
	if err != nil {
		return fail(err)
	}
	markup, err := ex.str(args[1], args[2])
	if err != nil {
		return fail(err)
	}
	if err := el.SetInnerHTML(markup); err != nil {
		return fail(err)
	}
	return ok()
}

func newNoArgs(_ context.Context, ex *Exports, args []uint64) Outcome {
	body, err := ex.str(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return ok(ex.add(ex.env.NewFunction(body)))
}

func call(_ context.Context, ex *Exports, args []uint64) Outcome {
	fv, err := ex.get(args[0])
	if err != nil {
		return fail(err)
	}
	fn, is := fv.(*env.Function)
	if !is {
		return fail(env.TypeError(env.DebugString(fv) + ".call is not a function"))
	}
	this, err := ex.get(args[1])
	if err != nil {
		return fail(err)
	}
	ret, err := fn.Call(this)
	if err != nil {
		return fail(err)
	}
	return ok(ex.add(ret))
}

// global resolves name in the calling context and reads the property of the
// same name from it, so self() is self.self.
func global(name string) func(context.Context, *Exports, []uint64) Outcome {
	return func(_ context.Context, ex *Exports, _ []uint64) Outcome {
		v, err := ex.env.Lookup(name)
		if err != nil {
			return fail(err)
		}
		return ok(ex.add(env.Property(v, name)))
	}
}
