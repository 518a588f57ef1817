package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// WazeroEngine compiles and instantiates modules on a wazero runtime.
type WazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// CloseOnContextDone stops running guest code when the call context is
	// cancelled.
	CloseOnContextDone bool `yaml:"close_on_context_done"`

	// CacheDir enables an on-disk compilation cache.
	CacheDir string `yaml:"cache_dir"`
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	e := &WazeroEngine{}

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
		if cfg.CacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
			if err != nil {
				return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
					Detail("compilation cache %s", cfg.CacheDir).
					Cause(err).
					Build()
			}
			e.cache = cache
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
		}
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e, nil
}

// Runtime returns the underlying wazero runtime.
func (e *WazeroEngine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases the runtime and every module it created.
func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Compile compiles module bytes.
func (e *WazeroEngine) Compile(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	Logger().Debug("module compiled",
		zap.Int("size", len(wasmBytes)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))

	return &WazeroModule{engine: e, compiled: compiled}, nil
}

// preamble is the magic number and version every core module starts with.
var preamble = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// CompileStream compiles a module read from r. The preamble is checked as
// soon as it arrives so non-wasm bodies fail before being buffered.
func (e *WazeroEngine) CompileStream(ctx context.Context, r io.Reader) (*WazeroModule, error) {
	head := make([]byte, len(preamble))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Load("read module preamble", err)
	}
	if !bytes.Equal(head, preamble) {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Detail("not a wasm module: preamble % x", head).
			Build()
	}

	var buf bytes.Buffer
	buf.Write(head)
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Load("stream module", err)
		}
		n, err := io.CopyN(&buf, r, streamChunk)
		debugf("streamed %d bytes (total %d)", n, buf.Len())
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Load("stream module", err)
		}
	}

	return e.Compile(ctx, buf.Bytes())
}

const streamChunk = 64 << 10

// WazeroModule is a compiled module
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// Module wraps a module compiled on this engine's runtime.
func (e *WazeroEngine) Module(compiled wazero.CompiledModule) *WazeroModule {
	return &WazeroModule{engine: e, compiled: compiled}
}

// Compiled returns the wazero compiled module.
func (m *WazeroModule) Compiled() wazero.CompiledModule {
	return m.compiled
}

// Import describes one function import.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Key returns "module#name".
func (i Import) Key() string {
	return i.Module + "#" + i.Name
}

// Imports lists the function imports of the module in import order.
func (m *WazeroModule) Imports() []Import {
	defs := m.compiled.ImportedFunctions()
	out := make([]Import, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		out = append(out, Import{
			Module:  mod,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	return out
}

// HasExport reports whether the module exports a function named name.
func (m *WazeroModule) HasExport(name string) bool {
	_, ok := m.compiled.ExportedFunctions()[name]
	return ok
}

// Close releases the compiled code.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate creates an anonymous instance of the module without running
// its start functions. Host modules it imports must already be
// instantiated on the same engine.
func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	modCfg := wazero.NewModuleConfig().WithStartFunctions().WithName("")

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &WazeroInstance{module: mod}
	if mem := mod.Memory(); mem != nil {
		inst.memory = NewMemory(mem)
	}
	inst.alloc = newAllocator(mod)

	debugf("instantiated module %q (memory=%v allocator=%v)", mod.Name(), inst.memory != nil, inst.alloc != nil)
	return inst, nil
}

// WazeroInstance is a running module instance.
type WazeroInstance struct {
	module api.Module
	memory *WazeroMemory
	alloc  *wazeroAllocator
}

// Module returns the wazero module.
func (i *WazeroInstance) Module() api.Module {
	return i.module
}

// Memory returns the exported memory, or nil when the module has none.
func (i *WazeroInstance) Memory() *WazeroMemory {
	return i.memory
}

// Allocator returns the module's allocator. The result implements
// wasmbridge.Reallocator when the module exports __wbindgen_realloc. It is
// nil when the module exports no malloc.
func (i *WazeroInstance) Allocator() wasmbridge.Allocator {
	if i.alloc == nil {
		return nil
	}
	if i.alloc.reallocFn != nil {
		return &wazeroReallocator{i.alloc}
	}
	return i.alloc
}

// SetContext sets the context allocator calls run under.
func (i *WazeroInstance) SetContext(ctx context.Context) {
	if i.alloc != nil {
		i.alloc.setContext(ctx)
	}
}

// HasExport reports whether the instance exports a function named name.
func (i *WazeroInstance) HasExport(name string) bool {
	return i.module.ExportedFunction(name) != nil
}

// Call invokes an exported function.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(name)
	}
	i.SetContext(ctx)
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return results, nil
}

// Global reads an exported global.
func (i *WazeroInstance) Global(name string) (uint64, bool) {
	g := i.module.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// Close closes the instance.
func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	i.memory = nil
	i.alloc = nil
	return err
}
