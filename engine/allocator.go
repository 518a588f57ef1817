package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Allocator export names.
const (
	MallocExport  = "__wbindgen_malloc"
	ReallocExport = "__wbindgen_realloc"
	FreeExport    = "__wbindgen_free"
)

// wazeroAllocator calls the module's bindgen allocator exports. Older
// toolchains emit malloc(size), realloc(ptr, old, new) and free(ptr, size);
// newer ones append an alignment argument to each. The arity is read from
// the export definitions.
type wazeroAllocator struct {
	mallocFn   api.Function
	reallocFn  api.Function
	freeFn     api.Function
	currentCtx context.Context
	stackBuf   [4]uint64
	stackMutex sync.Mutex
}

func newAllocator(mod api.Module) *wazeroAllocator {
	malloc := mod.ExportedFunction(MallocExport)
	if malloc == nil {
		return nil
	}
	a := &wazeroAllocator{
		mallocFn:  malloc,
		reallocFn: mod.ExportedFunction(ReallocExport),
		freeFn:    mod.ExportedFunction(FreeExport),
	}
	debugf("allocator: malloc/%d realloc=%v free=%v",
		len(malloc.Definition().ParamTypes()), a.reallocFn != nil, a.freeFn != nil)
	return a
}

func (a *wazeroAllocator) setContext(ctx context.Context) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()
	a.currentCtx = ctx
}

func (a *wazeroAllocator) ctx() context.Context {
	if a.currentCtx == nil {
		return context.Background()
	}
	return a.currentCtx
}

// call fills the stack with the leading arity(fn) values of args and
// returns the first result.
func (a *wazeroAllocator) call(fn api.Function, args ...uint64) (uint64, error) {
	n := len(fn.Definition().ParamTypes())
	if n > len(args) {
		return 0, fmt.Errorf("%s takes %d params, at most %d supported",
			fn.Definition().Name(), n, len(args))
	}
	stack := a.stackBuf[:]
	copy(stack, args[:n])
	if len(fn.Definition().ResultTypes()) > n {
		stack = stack[:len(fn.Definition().ResultTypes())]
	} else {
		stack = stack[:n]
	}
	if err := fn.CallWithStack(a.ctx(), stack); err != nil {
		return 0, err
	}
	return stack[0], nil
}

func (a *wazeroAllocator) Alloc(size, align uint32) (uint32, error) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	ptr, err := a.call(a.mallocFn, uint64(size), uint64(align))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	return uint32(ptr), nil
}

func (a *wazeroAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	if _, err := a.call(a.freeFn, uint64(ptr), uint64(size), uint64(align)); err != nil {
		Logger().Warn("Free: failed to call __wbindgen_free",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// wazeroReallocator adds Realloc for modules exporting __wbindgen_realloc.
type wazeroReallocator struct {
	*wazeroAllocator
}

func (a *wazeroReallocator) Realloc(ptr, oldSize, newSize, align uint32) (uint32, error) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	out, err := a.call(a.reallocFn, uint64(ptr), uint64(oldSize), uint64(newSize), uint64(align))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, newSize, align, err)
	}
	return uint32(out), nil
}

var (
	_ wasmbridge.Allocator   = (*wazeroAllocator)(nil)
	_ wasmbridge.Reallocator = (*wazeroReallocator)(nil)
)
