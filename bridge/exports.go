package bridge

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/codec"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

const (
	startExport    = "__wbindgen_start"
	exnStoreExport = "__wbindgen_exn_store"
	mainExport     = "main"
)

// Exports is the export table of an instantiated module. Calls are
// serialized.
type Exports struct {
	instance *engine.WazeroInstance
	host     interface{ Close(context.Context) error }
	heap     *heap.Table
	env      *env.Environment
	logger   *zap.Logger
	memory   wasmbridge.Memory
	views    *codec.Views
	encoder  *codec.Encoder
	decoder  *codec.Decoder
	mu       sync.Mutex
}

// bind attaches the instance once it exists. Callbacks only run during
// export calls, which cannot happen before bind.
func (e *Exports) bind(inst *engine.WazeroInstance) {
	e.instance = inst

	var buf wasmbridge.Buffer
	if mem := inst.Memory(); mem != nil {
		buf = mem
		e.memory = mem
	}
	e.views = codec.NewViews(buf)
	e.encoder = codec.NewEncoder(e.views, inst.Allocator())
	e.decoder = codec.NewDecoder(e.views)
}

// Has reports whether the module exports a function named name.
func (e *Exports) Has(name string) bool {
	return e.instance.HasExport(name)
}

// Call invokes an export with raw core values.
func (e *Exports) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.instance.HasExport(name) {
		return nil, errors.MissingExport(name)
	}
	results, err := e.instance.Call(ctx, name, params...)
	if err != nil {
		e.logger.Debug("export call failed", zap.String("export", name), zap.Error(err))
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Main runs the main export.
func (e *Exports) Main(ctx context.Context) error {
	_, err := e.Call(ctx, mainExport)
	return err
}

// Functions describes the exported functions by name.
func (e *Exports) Functions() map[string]api.FunctionDefinition {
	return e.instance.Module().ExportedFunctionDefinitions()
}

// Memory returns the module's linear memory, or nil when it exports none.
func (e *Exports) Memory() *engine.WazeroMemory {
	return e.instance.Memory()
}

// PassString copies s into module memory.
func (e *Exports) PassString(ctx context.Context, s string) (ptr, length uint32, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instance.SetContext(ctx)
	return e.encoder.Pass(s)
}

// String reads a UTF-8 string from module memory.
func (e *Exports) String(ptr, length uint32) (string, error) {
	return e.decoder.String(ptr, length)
}

// Global reads an exported global.
func (e *Exports) Global(name string) (uint64, bool) {
	return e.instance.Global(name)
}

func (e *Exports) mem() (wasmbridge.Memory, error) {
	if e.memory == nil {
		return nil, errors.Unavailable(errors.PhaseCallback, "linear memory")
	}
	return e.memory, nil
}

// storeException hands a thrown value to the module.
func (e *Exports) storeException(ctx context.Context, v env.Value) error {
	if !e.instance.HasExport(exnStoreExport) {
		return errors.MissingExport(exnStoreExport)
	}
	h := e.heap.Add(v)
	if _, err := e.instance.Call(ctx, exnStoreExport, uint64(h)); err != nil {
		return errors.Trap(exnStoreExport, err)
	}
	return nil
}

func (e *Exports) close(ctx context.Context) {
	if e.instance != nil {
		if err := e.instance.Close(ctx); err != nil {
			e.logger.Debug("close instance", zap.Error(err))
		}
	}
	if e.host != nil {
		if err := e.host.Close(ctx); err != nil {
			e.logger.Debug("close host module", zap.Error(err))
		}
	}
}
