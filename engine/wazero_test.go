package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/guest"
)

// instantiateGuest compiles the synthetic guest and links it against no-op
// wbg stubs.
func instantiateGuest(t *testing.T, opts ...guest.Option) *WazeroInstance {
	t.Helper()
	ctx := context.Background()

	e, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })

	m, err := e.Compile(ctx, guest.Build(opts...))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	host := e.NewHostModule("wbg")
	for _, imp := range m.Imports() {
		results := len(imp.Results)
		host.Func(imp.Name, imp.Params, imp.Results, func(_ context.Context, _ api.Module, stack []uint64) {
			if results > 0 {
				stack[0] = 0
			}
		})
	}
	if _, err := host.Instantiate(ctx); err != nil {
		t.Fatalf("host Instantiate failed: %v", err)
	}

	inst, err := m.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return inst
}

func global(t *testing.T, inst *WazeroInstance, name string) uint32 {
	t.Helper()
	v, ok := inst.Global(name)
	if !ok {
		t.Fatalf("global %q not exported", name)
	}
	return uint32(v)
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{CloseOnContextDone: true}, "close on done"},
		{&Config{CacheDir: t.TempDir()}, "compilation cache"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			if engine.Runtime() == nil {
				t.Error("engine runtime should not be nil")
			}
			if err := engine.Close(ctx); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
}

func TestWazeroEngine_CompileInvalid(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer e.Close(ctx)

	_, err = e.Compile(ctx, []byte("not wasm"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("error kind: %v", err)
	}
}

func TestWazeroEngine_CompileStream(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer e.Close(ctx)

	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{"guest", guest.Build(), false},
		{"html", []byte("<!doctype html><html></html>"), true},
		{"short", []byte{0x00, 0x61, 0x73}, true},
		{"empty", nil, true},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := e.CompileStream(ctx, bytes.NewReader(tc.input))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.IsKind(err, errors.KindInvalidData) {
					t.Errorf("error kind: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CompileStream failed: %v", err)
			}
			if got := len(m.Imports()); got != len(guest.Callbacks) {
				t.Errorf("imports = %d, want %d", got, len(guest.Callbacks))
			}
		})
	}
}

func TestWazeroModule_Imports(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer e.Close(ctx)

	m, err := e.Compile(ctx, guest.Build())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	imports := m.Imports()
	for i, imp := range imports {
		cb := guest.Callbacks[i]
		if imp.Module != "wbg" || imp.Name != cb.Name {
			t.Errorf("import %d = %s, want wbg#%s", i, imp.Key(), cb.Name)
		}
		if len(imp.Params) != cb.Params || len(imp.Results) != cb.Results {
			t.Errorf("%s signature = %d -> %d, want %d -> %d",
				cb.Name, len(imp.Params), len(imp.Results), cb.Params, cb.Results)
		}
	}
	if !m.HasExport(guest.ExportMain) {
		t.Error("HasExport(main) = false")
	}
	if m.HasExport("missing") {
		t.Error("HasExport(missing) = true")
	}
}

func TestWazeroModule_InstantiateWithoutHost(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer e.Close(ctx)

	m, err := e.Compile(ctx, guest.Build())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	_, err = m.Instantiate(ctx)
	if !errors.IsKind(err, errors.KindInstantiation) {
		t.Fatalf("expected instantiation error, got %v", err)
	}
}

func TestWazeroInstance_NoStartFunction(t *testing.T) {
	inst := instantiateGuest(t)
	if got := global(t, inst, guest.GlobalStartCount); got != 0 {
		t.Errorf("start_count = %d, want 0", got)
	}
	if _, err := inst.Call(context.Background(), guest.ExportStart); err != nil {
		t.Fatalf("Call start failed: %v", err)
	}
	if got := global(t, inst, guest.GlobalStartCount); got != 1 {
		t.Errorf("start_count = %d, want 1", got)
	}
}

func TestWazeroInstance_CallMissingExport(t *testing.T) {
	inst := instantiateGuest(t)
	_, err := inst.Call(context.Background(), "nope")
	if !errors.IsKind(err, errors.KindMissingExport) {
		t.Fatalf("expected missing export, got %v", err)
	}
	if inst.HasExport("nope") {
		t.Error("HasExport(nope) = true")
	}
	if _, ok := inst.Global("nope"); ok {
		t.Error("Global(nope) found")
	}
}

func TestWazeroAllocator(t *testing.T) {
	inst := instantiateGuest(t)

	ra, ok := inst.Allocator().(wasmbridge.Reallocator)
	if !ok {
		t.Fatalf("allocator %T does not realloc", inst.Allocator())
	}

	a, err := ra.Alloc(10, 1)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if a != 1024 {
		t.Errorf("first Alloc = %d, want 1024", a)
	}

	grown, err := ra.Realloc(a, 10, 20, 1)
	if err != nil {
		t.Fatalf("Realloc failed: %v", err)
	}
	if grown != 1034 {
		t.Errorf("Realloc = %d, want 1034", grown)
	}

	shrunk, err := ra.Realloc(grown, 20, 5, 1)
	if err != nil {
		t.Fatalf("Realloc failed: %v", err)
	}
	if shrunk != grown {
		t.Errorf("shrinking Realloc moved %d -> %d", grown, shrunk)
	}

	ra.Free(shrunk, 5, 1)
	ra.Free(0, 99, 1)

	checks := map[string]uint32{
		guest.GlobalMallocCount:  2,
		guest.GlobalReallocCount: 2,
		guest.GlobalFreeCount:    1,
		guest.GlobalFreeBytes:    5,
	}
	for name, want := range checks {
		if got := global(t, inst, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestWazeroAllocator_Arity(t *testing.T) {
	tests := []struct {
		name        string
		opts        []guest.Option
		wantNil     bool
		wantRealloc bool
	}{
		{"full", nil, false, true},
		{"aligned free", []guest.Option{guest.WithAlignedFree()}, false, true},
		{"no realloc", []guest.Option{guest.Without(guest.ExportRealloc)}, false, false},
		{"no malloc", []guest.Option{guest.Without(guest.ExportMalloc), guest.Without(guest.ExportRealloc)}, true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inst := instantiateGuest(t, tc.opts...)
			alloc := inst.Allocator()
			if tc.wantNil {
				if alloc != nil {
					t.Fatalf("Allocator = %T, want nil", alloc)
				}
				return
			}
			if alloc == nil {
				t.Fatal("Allocator = nil")
			}
			_, isRealloc := alloc.(wasmbridge.Reallocator)
			if isRealloc != tc.wantRealloc {
				t.Errorf("Reallocator = %v, want %v", isRealloc, tc.wantRealloc)
			}

			ptr, err := alloc.Alloc(8, 4)
			if err != nil {
				t.Fatalf("Alloc failed: %v", err)
			}
			alloc.Free(ptr, 8, 4)
			if got := global(t, inst, guest.GlobalFreeBytes); got != 8 {
				t.Errorf("free_bytes = %d, want 8", got)
			}
		})
	}
}

func TestWazeroMemory(t *testing.T) {
	inst := instantiateGuest(t)
	mem := inst.Memory()
	if mem == nil {
		t.Fatal("Memory = nil")
	}
	if mem.Size() != 65536 {
		t.Fatalf("Size = %d, want 65536", mem.Size())
	}

	if err := mem.Write(100, []byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	view := mem.Bytes()
	if string(view[100:103]) != "abc" {
		t.Errorf("Bytes()[100:103] = %q", view[100:103])
	}

	if err := mem.WriteU32(200, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	if v := binary.LittleEndian.Uint32(view[200:]); v != 0xdeadbeef {
		t.Errorf("word at 200 = %#x", v)
	}

	if err := mem.Write(65530, make([]byte, 10)); !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Errorf("Write past the end: %v", err)
	}
	if err := mem.WriteU32(65534, 1); err == nil || !strings.Contains(err.Error(), "out of bounds") {
		t.Errorf("WriteU32 at edge: %v", err)
	}

	if _, err := inst.Call(context.Background(), guest.ExportGrow, 1); err != nil {
		t.Fatalf("grow failed: %v", err)
	}
	if mem.Size() != 2*65536 {
		t.Errorf("Size after grow = %d", mem.Size())
	}
	if len(view) != 65536 {
		t.Errorf("old view length changed to %d", len(view))
	}
	if got := len(mem.Bytes()); got != 2*65536 {
		t.Errorf("Bytes after grow = %d", got)
	}
}

func TestWazeroInstance_Close(t *testing.T) {
	inst := instantiateGuest(t)
	if err := inst.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := inst.Close(context.Background()); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if inst.Memory() != nil || inst.Allocator() != nil {
		t.Error("closed instance still exposes memory or allocator")
	}
}
