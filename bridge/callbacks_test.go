package bridge

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/internal/guest"
)

// scratch is guest memory below the bump heap that tests may use freely.
const scratch = 512

type harness struct {
	t   *testing.T
	b   *Bridge
	ex  *Exports
	rec *env.RecordingConsole
}

func newHarness(t *testing.T, envOpts []env.Option, guestOpts ...guest.Option) *harness {
	t.Helper()
	ctx := context.Background()

	rec := env.NewRecordingConsole()
	e, err := env.New(append([]env.Option{env.WithConsole(rec)}, envOpts...)...)
	if err != nil {
		t.Fatalf("env.New failed: %v", err)
	}
	b, err := New(ctx, WithEnvironment(e))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { b.Close(ctx) })

	ex, err := b.Instantiate(ctx, FromBytes(guest.Build(guestOpts...)))
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return &harness{t: t, b: b, ex: ex, rec: rec}
}

// fwd drives one callback through the guest's forwarding export.
func (h *harness) fwd(base string, args ...uint64) ([]uint64, error) {
	return h.ex.Call(context.Background(), guest.Forwarder(base), args...)
}

func (h *harness) mustFwd(base string, args ...uint64) []uint64 {
	h.t.Helper()
	out, err := h.fwd(base, args...)
	if err != nil {
		h.t.Fatalf("%s failed: %v", base, err)
	}
	return out
}

func (h *harness) pass(s string) (uint64, uint64) {
	h.t.Helper()
	ptr, n, err := h.ex.PassString(context.Background(), s)
	if err != nil {
		h.t.Fatalf("PassString failed: %v", err)
	}
	return uint64(ptr), uint64(n)
}

func (h *harness) add(v env.Value) uint64 {
	return uint64(h.b.Heap().Add(v))
}

func (h *harness) value(raw uint64) env.Value {
	h.t.Helper()
	v, found := h.b.Heap().Get(heap.Handle(uint32(raw)))
	if !found {
		h.t.Fatalf("handle %d not live", raw)
	}
	return v
}

func (h *harness) global(name string) uint32 {
	return globalValue(h.t, h.ex, name)
}

// lastException returns the value most recently handed to exn_store.
func (h *harness) lastException() *env.Error {
	h.t.Helper()
	v := h.value(uint64(h.global(guest.GlobalLastExn)))
	e, is := v.(*env.Error)
	if !is {
		h.t.Fatalf("stored exception is %T, want *env.Error", v)
	}
	return e
}

// word reads the little-endian word at addr.
func (h *harness) word(addr uint32) uint32 {
	h.t.Helper()
	view := h.ex.Memory().Bytes()
	if int(addr)+4 > len(view) {
		h.t.Fatalf("word at %d is out of bounds", addr)
	}
	return binary.LittleEndian.Uint32(view[addr:])
}

func (h *harness) slice(retptr uint32) (uint32, uint32) {
	h.t.Helper()
	return h.word(retptr), h.word(retptr + 4)
}

func TestCallback_Globals(t *testing.T) {
	tests := []struct {
		context env.Context
		defined []string
		missing []string
	}{
		{env.ContextWindow, []string{"__wbg_self", "__wbg_window", "__wbg_globalThis"}, []string{"__wbg_global"}},
		{env.ContextWorker, []string{"__wbg_self", "__wbg_globalThis"}, []string{"__wbg_window", "__wbg_global"}},
		{env.ContextNode, []string{"__wbg_globalThis", "__wbg_global"}, []string{"__wbg_self", "__wbg_window"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.context), func(t *testing.T) {
			h := newHarness(t, []env.Option{env.WithContext(tt.context)})
			global := h.b.Environment().Global()

			for _, name := range tt.defined {
				out := h.mustFwd(name)
				if got := h.value(out[0]); got != global {
					t.Errorf("%s returned %v, want the global object", name, got)
				}
			}
			if got := h.global(guest.GlobalExnCount); got != 0 {
				t.Fatalf("exn_count = %d after defined globals", got)
			}

			for i, name := range tt.missing {
				out := h.mustFwd(name)
				if out[0] != 0 {
					t.Errorf("%s returned %d after throwing, want 0", name, out[0])
				}
				if got := h.global(guest.GlobalExnCount); got != uint32(i+1) {
					t.Errorf("exn_count = %d, want %d", got, i+1)
				}
				exn := h.lastException()
				want := strings.TrimPrefix(name, "__wbg_") + " is not defined"
				if exn.Name != "ReferenceError" || exn.Message != want {
					t.Errorf("exception = %v, want ReferenceError: %s", exn, want)
				}
			}
		})
	}
}

func TestCallback_InstanceofWindow(t *testing.T) {
	h := newHarness(t, nil)
	doc := h.b.Environment().Document()

	tests := []struct {
		value env.Value
		want  uint64
	}{
		{h.b.Environment().Window(), 1},
		{doc, 0},
		{"window", 0},
		{env.Undefined, 0},
	}
	for _, tt := range tests {
		if out := h.mustFwd("__wbg_instanceof_Window", h.add(tt.value)); out[0] != tt.want {
			t.Errorf("instanceof Window(%s) = %d, want %d", env.DebugString(tt.value), out[0], tt.want)
		}
	}
}

func TestCallback_DocumentBody(t *testing.T) {
	h := newHarness(t, nil)
	e := h.b.Environment()

	doc := h.mustFwd("__wbg_document", h.add(e.Window()))
	if h.value(doc[0]) != e.Document() {
		t.Fatal("document returned a different value")
	}
	body := h.mustFwd("__wbg_body", doc[0])
	if h.value(body[0]) != e.Document().Body() {
		t.Fatal("body returned a different value")
	}

	// Values without the property report 0.
	if out := h.mustFwd("__wbg_document", h.add(env.NewObject())); out[0] != 0 {
		t.Errorf("document of a plain object = %d, want 0", out[0])
	}

	// Reading from undefined or null throws.
	tests := []struct {
		callback string
		receiver uint64
		want     string
	}{
		{"__wbg_body", uint64(h.b.Heap().Null()), "Cannot read properties of null (reading 'body')"},
		{"__wbg_document", uint64(h.b.Heap().Undefined()), "Cannot read properties of undefined (reading 'document')"},
	}
	for _, tt := range tests {
		_, err := h.fwd(tt.callback, tt.receiver)
		if !errors.IsKind(err, errors.KindThrown) {
			t.Fatalf("%s: expected a thrown error, got %v", tt.callback, err)
		}
		if !strings.Contains(err.Error(), "TypeError: "+tt.want) {
			t.Errorf("%s: error = %q", tt.callback, err.Error())
		}
	}
	if got := h.global(guest.GlobalExnCount); got != 0 {
		t.Errorf("property reads went through exn_store (%d)", got)
	}
	h.mustFwd("__wbg_self")
}

func TestCallback_InsertAdjacentHTML(t *testing.T) {
	h := newHarness(t, nil)
	body := h.add(h.b.Environment().Document().Body())

	pos, posLen := h.pass("beforeend")
	markup, markupLen := h.pass("<b>ok</b>")
	h.mustFwd("__wbg_insertAdjacentHTML", body, pos, posLen, markup, markupLen)
	if got := h.b.Environment().Document().Body().InnerHTML(); got != "<b>ok</b>" {
		t.Fatalf("body = %q", got)
	}

	tests := []struct {
		name     string
		target   uint64
		position string
		wantName string
	}{
		{"bad position", body, "middle", "SyntaxError"},
		{"not an element", h.add(h.b.Environment().Window()), "beforeend", "TypeError"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, posLen := h.pass(tt.position)
			if _, err := h.fwd("__wbg_insertAdjacentHTML", tt.target, pos, posLen, markup, markupLen); err != nil {
				t.Fatalf("catching callback trapped: %v", err)
			}
			if got := h.global(guest.GlobalExnCount); got != uint32(i+1) {
				t.Errorf("exn_count = %d, want %d", got, i+1)
			}
			if exn := h.lastException(); exn.Name != tt.wantName {
				t.Errorf("exception = %v, want %s", exn, tt.wantName)
			}
		})
	}
}

func TestCallback_Throw(t *testing.T) {
	h := newHarness(t, nil)
	ptr, n := h.pass("boom: état")

	_, err := h.fwd("__wbindgen_throw", ptr, n)
	if err == nil {
		t.Fatal("expected throw to fail the call")
	}
	if !errors.IsKind(err, errors.KindThrown) {
		t.Errorf("error kind: %v", err)
	}
	if !strings.Contains(err.Error(), "boom: état") {
		t.Errorf("message = %q", err.Error())
	}
	if got := h.global(guest.GlobalExnCount); got != 0 {
		t.Errorf("throw went through exn_store (%d)", got)
	}

	// The instance stays usable.
	h.mustFwd("__wbg_self")
}

func TestCallback_DebugString(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		value env.Value
		want  string
	}{
		{[]env.Value{1.0, "a", nil}, `[1, "a", null]`},
		{env.NewFunction("foo", nil), "Function(foo)"},
		{h.b.Environment().Window(), "Window"},
		{env.ObjectOf("k", "v"), `Object({"k":"v"})`},
		{"ünï", `"ünï"`},
	}
	for _, tt := range tests {
		const retptr = scratch
		h.mustFwd("__wbindgen_debug_string", retptr, h.add(tt.value))
		ptr, n := h.slice(retptr)
		got, err := h.ex.String(ptr, n)
		if err != nil {
			t.Fatalf("String failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("debug_string = %q, want %q", got, tt.want)
		}
	}
}

func TestCallback_DebugStringCycleTraps(t *testing.T) {
	h := newHarness(t, nil)
	cyclic := make([]env.Value, 1)
	cyclic[0] = cyclic

	_, err := h.fwd("__wbindgen_debug_string", scratch, h.add(cyclic))
	if !errors.IsKind(err, errors.KindThrown) {
		t.Fatalf("expected a thrown error, got %v", err)
	}
	if !strings.Contains(err.Error(), "RangeError") {
		t.Errorf("error = %q, want a RangeError", err.Error())
	}
	var trap *errors.Error
	if !stderrors.As(err, &trap) || trap.Kind != errors.KindTrap {
		t.Fatalf("expected a trap, got %v", err)
	}
	var thrown *errors.Error
	if !stderrors.As(trap.Cause, &thrown) || thrown.HostType != "object" {
		t.Errorf("thrown = %+v, want host type object", thrown)
	}
	if got := h.global(guest.GlobalExnCount); got != 0 {
		t.Errorf("debug_string went through exn_store (%d)", got)
	}
	h.mustFwd("__wbg_self")
}

func TestCallback_ConsoleHandleCountOverflow(t *testing.T) {
	h := newHarness(t, nil)

	for _, count := range []uint64{0x40000001, 0xffffffff} {
		_, err := h.fwd("__wbg_debug", scratch, count)
		if !errors.IsKind(err, errors.KindOutOfBounds) {
			t.Fatalf("count %#x: expected out_of_bounds, got %v", count, err)
		}
	}
	if got := h.global(guest.GlobalFreeCount); got != 0 {
		t.Errorf("free_count = %d, want 0", got)
	}
	if len(h.rec.Entries()) != 0 {
		t.Error("console written despite the bad handle array")
	}
}

func TestCallback_ConsoleDebug(t *testing.T) {
	h := newHarness(t, nil)
	mem := h.ex.Memory()

	a := h.add("hello")
	b := h.add(42.0)
	live := h.b.Heap().Live()
	mem.WriteU32(scratch, uint32(a))
	mem.WriteU32(scratch+4, uint32(b))

	h.mustFwd("__wbg_debug", scratch, 2)

	entries := h.rec.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 console entry, got %d", len(entries))
	}
	if entries[0].Level != env.LevelDebug || entries[0].Message != "hello 42" {
		t.Errorf("entry = %+v", entries[0])
	}
	if got := h.b.Heap().Live(); got != live-2 {
		t.Errorf("live handles = %d, want %d", got, live-2)
	}
	if got := h.global(guest.GlobalFreeCount); got != 1 {
		t.Errorf("free_count = %d, want 1", got)
	}
	if got := h.global(guest.GlobalFreeBytes); got != 8 {
		t.Errorf("free_bytes = %d, want 8", got)
	}
}

func TestCallback_Functions(t *testing.T) {
	reg := env.NewRegistry()
	reg.Register("return 40 + 2", func(env.Value, []env.Value) (env.Value, error) { return 42.0, nil })
	h := newHarness(t, []env.Option{env.WithRegistry(reg)})
	undefined := uint64(h.b.Heap().Undefined())

	body, n := h.pass("return this")
	fn := h.mustFwd("__wbg_newnoargs", body, n)
	if f, is := h.value(fn[0]).(*env.Function); !is || f.Name != "anonymous" {
		t.Fatalf("newnoargs returned %v", h.value(fn[0]))
	}

	out := h.mustFwd("__wbg_call", fn[0], undefined)
	if h.value(out[0]) != h.b.Environment().Global() {
		t.Error("calling return this without a receiver should yield the global object")
	}
	out = h.mustFwd("__wbg_call", fn[0], h.add("me"))
	if h.value(out[0]) != "me" {
		t.Errorf("receiver = %v", h.value(out[0]))
	}

	body, n = h.pass("return 40 + 2")
	fn = h.mustFwd("__wbg_newnoargs", body, n)
	out = h.mustFwd("__wbg_call", fn[0], undefined)
	if h.value(out[0]) != 42.0 {
		t.Errorf("registered body returned %v", h.value(out[0]))
	}

	body, n = h.pass("alert(1)")
	fn = h.mustFwd("__wbg_newnoargs", body, n)
	out = h.mustFwd("__wbg_call", fn[0], undefined)
	if out[0] != 0 {
		t.Errorf("failed call returned %d", out[0])
	}
	if exn := h.lastException(); exn.Name != "EvalError" {
		t.Errorf("exception = %v, want EvalError", exn)
	}

	h.mustFwd("__wbg_call", h.add(1.0), undefined)
	if exn := h.lastException(); exn.Name != "TypeError" {
		t.Errorf("calling a number: exception = %v, want TypeError", exn)
	}
}

func TestCallback_Refs(t *testing.T) {
	h := newHarness(t, nil)
	tbl := h.b.Heap()

	ptr, n := h.pass("owned")
	s := h.mustFwd("__wbindgen_string_new", ptr, n)
	if h.value(s[0]) != "owned" {
		t.Fatalf("string_new stored %v", h.value(s[0]))
	}

	clone := h.mustFwd("__wbindgen_object_clone_ref", s[0])
	if clone[0] == s[0] || h.value(clone[0]) != "owned" {
		t.Fatalf("clone_ref = %d (original %d)", clone[0], s[0])
	}

	tests := []struct {
		handle uint64
		want   uint64
	}{
		{uint64(tbl.Undefined()), 1},
		{uint64(tbl.Null()), 0},
		{s[0], 0},
	}
	for _, tt := range tests {
		if out := h.mustFwd("__wbindgen_is_undefined", tt.handle); out[0] != tt.want {
			t.Errorf("is_undefined(%d) = %d, want %d", tt.handle, out[0], tt.want)
		}
	}

	live := tbl.Live()
	h.mustFwd("__wbindgen_object_drop_ref", s[0])
	h.mustFwd("__wbindgen_object_drop_ref", uint64(tbl.Bool(true)))
	h.mustFwd("__wbindgen_object_drop_ref", 3)
	if got := tbl.Live(); got != live-1 {
		t.Errorf("live = %d, want %d", got, live-1)
	}

	// Reusing the released slot hands out the same index.
	if again := h.add("next"); again != s[0] {
		t.Errorf("released slot %d not reused (got %d)", s[0], again)
	}
}

func TestCallback_InvalidUTF8Traps(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.Memory().Write(scratch, []byte{0xff, 0xfe})

	_, err := h.fwd("__wbindgen_string_new", scratch, 2)
	if !errors.IsKind(err, errors.KindInvalidUTF8) {
		t.Fatalf("expected invalid utf8, got %v", err)
	}
}

func TestCallback_InvalidHandleTraps(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.fwd("__wbindgen_is_undefined", 9999)
	if !errors.IsKind(err, errors.KindInvalidHandle) {
		t.Fatalf("expected invalid handle, got %v", err)
	}
}

func TestCallback_Extended(t *testing.T) {
	h := newHarness(t, nil,
		guest.WithImport("__wbindgen_string_get_0000000000000001", 2, 0),
		guest.WithImport("__wbindgen_number_get_0000000000000002", 2, 0),
		guest.WithImport("__wbindgen_boolean_get_0000000000000003", 1, 1),
		guest.WithImport("__wbindgen_is_null", 1, 1),
		guest.WithImport("__wbindgen_is_string", 1, 1),
		guest.WithImport("__wbindgen_is_function", 1, 1),
		guest.WithImport("__wbindgen_is_object", 1, 1),
		guest.WithImport("__wbg_log_00000000000000aa", 2, 0),
		guest.WithImport("__wbg_error_00000000000000ab", 2, 0),
		guest.WithImport("__wbg_createElement_00000000000000ac", 3, 1),
		guest.WithImport("__wbg_appendChild_00000000000000ad", 2, 1),
		guest.WithImport("__wbg_setinnerHTML_00000000000000ae", 3, 0),
		guest.WithImport("__wbg_instanceof_HtmlElement_00000000000000af", 1, 1),
	)
	e := h.b.Environment()
	mem := h.ex.Memory()

	t.Run("string_get", func(t *testing.T) {
		h.mustFwd("__wbindgen_string_get", scratch, h.add("héllo"))
		ptr, n := h.slice(scratch)
		if got, _ := h.ex.String(ptr, n); got != "héllo" {
			t.Errorf("string_get = %q", got)
		}
		h.mustFwd("__wbindgen_string_get", scratch, h.add(1.0))
		if ptr, n := h.slice(scratch); ptr != 0 || n != 0 {
			t.Errorf("string_get of a number = (%d, %d)", ptr, n)
		}
	})

	t.Run("number_get", func(t *testing.T) {
		h.mustFwd("__wbindgen_number_get", scratch, h.add(2.5))
		present := h.word(scratch)
		n := math.Float64frombits(binary.LittleEndian.Uint64(mem.Bytes()[scratch+8:]))
		if present != 1 || n != 2.5 {
			t.Errorf("number_get = %d, %v", present, n)
		}
		h.mustFwd("__wbindgen_number_get", scratch, h.add("2.5"))
		if present := h.word(scratch); present != 0 {
			t.Error("number_get of a string reported a number")
		}
	})

	t.Run("probes", func(t *testing.T) {
		fn := env.NewFunction("f", nil)
		tests := []struct {
			probe string
			value env.Value
			want  uint64
		}{
			{"__wbindgen_boolean_get", true, 1},
			{"__wbindgen_boolean_get", false, 0},
			{"__wbindgen_boolean_get", "true", 2},
			{"__wbindgen_is_null", nil, 1},
			{"__wbindgen_is_null", env.Undefined, 0},
			{"__wbindgen_is_string", "s", 1},
			{"__wbindgen_is_string", 1.0, 0},
			{"__wbindgen_is_function", fn, 1},
			{"__wbindgen_is_function", env.NewObject(), 0},
			{"__wbindgen_is_object", env.NewObject(), 1},
			{"__wbindgen_is_object", nil, 0},
			{"__wbindgen_is_object", fn, 0},
			{"__wbg_instanceof_HtmlElement", e.Document().Body(), 1},
			{"__wbg_instanceof_HtmlElement", e.Document(), 0},
		}
		for _, tt := range tests {
			if out := h.mustFwd(tt.probe, h.add(tt.value)); out[0] != tt.want {
				t.Errorf("%s(%s) = %d, want %d", tt.probe, env.DebugString(tt.value), out[0], tt.want)
			}
		}
	})

	t.Run("console levels", func(t *testing.T) {
		h.rec.Reset()
		mem.WriteU32(scratch, uint32(h.add("a")))
		h.mustFwd("__wbg_log", scratch, 1)
		mem.WriteU32(scratch, uint32(h.add("b")))
		h.mustFwd("__wbg_error", scratch, 1)

		entries := h.rec.Entries()
		if len(entries) != 2 || entries[0].Level != env.LevelLog || entries[1].Level != env.LevelError {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("dom", func(t *testing.T) {
		doc := h.add(e.Document())
		tag, n := h.pass("section")
		el := h.mustFwd("__wbg_createElement", doc, tag, n)
		if el[0] == 0 {
			t.Fatalf("createElement threw %v", h.lastException())
		}

		markup, mn := h.pass("<i>x</i>")
		h.mustFwd("__wbg_setinnerHTML", el[0], markup, mn)

		body := h.add(e.Document().Body())
		h.mustFwd("__wbg_appendChild", body, el[0])
		if got := e.Document().Body().InnerHTML(); !strings.HasSuffix(got, "<section><i>x</i></section>") {
			t.Errorf("body = %q", got)
		}

		before := h.global(guest.GlobalExnCount)
		bad, bn := h.pass("not a tag")
		if out := h.mustFwd("__wbg_createElement", doc, bad, bn); out[0] != 0 {
			t.Errorf("invalid createElement returned %d", out[0])
		}
		if h.global(guest.GlobalExnCount) != before+1 {
			t.Error("invalid tag did not reach exn_store")
		}
		if exn := h.lastException(); exn.Name != "InvalidCharacterError" {
			t.Errorf("exception = %v", exn)
		}

		h.mustFwd("__wbg_appendChild", el[0], body)
		if exn := h.lastException(); exn.Name != "HierarchyRequestError" {
			t.Errorf("exception = %v", exn)
		}
	})
}
