package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// HostModule collects Go functions exported under one import namespace.
type HostModule struct {
	builder wazero.HostModuleBuilder
	name    string
	funcs   []string
}

// NewHostModule starts a host module named name on the engine's runtime.
func (e *WazeroEngine) NewHostModule(name string) *HostModule {
	return &HostModule{
		builder: e.runtime.NewHostModuleBuilder(name),
		name:    name,
	}
}

// Func exports fn under name with the given core signature.
func (h *HostModule) Func(name string, params, results []api.ValueType, fn api.GoModuleFunc) *HostModule {
	h.builder.NewFunctionBuilder().
		WithGoModuleFunction(fn, params, results).
		WithName(name).
		Export(name)
	h.funcs = append(h.funcs, name)
	return h
}

// Len returns the number of exported functions.
func (h *HostModule) Len() int {
	return len(h.funcs)
}

// Instantiate registers the host module so guests can import from it.
func (h *HostModule) Instantiate(ctx context.Context) (api.Module, error) {
	mod, err := h.builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindInstantiation).
			Name(h.name).
			Detail("instantiate host module").
			Cause(err).
			Build()
	}
	Logger().Debug("host module instantiated",
		zap.String("module", h.name),
		zap.Int("functions", len(h.funcs)))
	return mod, nil
}
