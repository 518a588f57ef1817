package bridge

import (
	"context"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// ImportModule is the namespace bindgen callbacks are imported from.
const ImportModule = "wbg"

// BaseName strips the "_<16 hex digits>" suffix bindgen appends to
// imported callback names.
func BaseName(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || len(name)-i-1 != 16 {
		return name
	}
	for _, c := range name[i+1:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return name
		}
	}
	return name[:i]
}

// link builds the callback table for mod's imports, registers it and
// instantiates mod against it.
func (b *Bridge) link(ctx context.Context, mod *engine.WazeroModule) (*Exports, error) {
	ex := &Exports{
		heap:   b.heap,
		env:    b.env,
		logger: b.logger,
	}

	host := b.engine.NewHostModule(ImportModule)
	seen := make(map[string]bool)
	var missing []string
	for _, imp := range mod.Imports() {
		if seen[imp.Key()] {
			continue
		}
		seen[imp.Key()] = true

		if imp.Module != ImportModule {
			missing = append(missing, imp.Key())
			continue
		}
		cb, found := callbacks[BaseName(imp.Name)]
		if !found {
			missing = append(missing, imp.Key())
			continue
		}
		if !slices.Equal(imp.Params, cb.params) || !slices.Equal(imp.Results, cb.results) {
			return nil, errors.TypeMismatch(errors.PhaseLoad, imp.Name,
				signature(imp.Params, imp.Results), signature(cb.params, cb.results))
		}
		host.Func(imp.Name, cb.params, cb.results, ex.hostFunc(imp.Name, cb))
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingImportsError(missing)
	}

	hostMod, err := host.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		hostMod.Close(ctx)
		return nil, err
	}

	ex.host = hostMod
	ex.bind(inst)
	return ex, nil
}

func signature(params, results []api.ValueType) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(api.ValueTypeName(p))
	}
	sb.WriteString(") -> (")
	for i, r := range results {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(api.ValueTypeName(r))
	}
	sb.WriteByte(')')
	return sb.String()
}
