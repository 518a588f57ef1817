package bridge

import (
	"context"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// WasmMIMEType is the content type streaming compilation requires.
const WasmMIMEType = "application/wasm"

const fallbackWarning = "`WebAssembly.instantiateStreaming` failed because your server does not serve wasm with `application/wasm` MIME type. Falling back to `WebAssembly.instantiate` which is slower. Original error:\n"

// Instantiate loads, links and starts the module from src. Once a module
// has been instantiated every later call returns its exports and ignores
// src. Concurrent first calls share one attempt; a failed attempt is not
// remembered.
func (b *Bridge) Instantiate(ctx context.Context, src *Source) (*Exports, error) {
	if ex := b.Exports(); ex != nil {
		return ex, nil
	}
	if src == nil {
		src = FromFile(b.cfg.defaultPath)
	}
	return b.once(ctx, src, b.cfg.streaming)
}

// InitSync instantiates from bytes, a compiled module or a file without
// streaming. It shares the idempotency of Instantiate.
func (b *Bridge) InitSync(ctx context.Context, src *Source) (*Exports, error) {
	if ex := b.Exports(); ex != nil {
		return ex, nil
	}
	if src == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "InitSync requires a module source")
	}
	if src.streams() {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("InitSync cannot load a %s source", src.kind).
			Build()
	}
	return b.once(ctx, src, false)
}

func (b *Bridge) once(ctx context.Context, src *Source, streaming bool) (*Exports, error) {
	v, err, shared := b.group.Do("instantiate", func() (any, error) {
		if ex := b.Exports(); ex != nil {
			return ex, nil
		}
		ex, err := b.instantiate(ctx, src, streaming)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.exports = ex
		b.mu.Unlock()
		return ex, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.Debug("joined in-flight instantiation")
	}
	return v.(*Exports), nil
}

func (b *Bridge) instantiate(ctx context.Context, src *Source, streaming bool) (*Exports, error) {
	mod, err := b.compile(ctx, src, streaming)
	if err != nil {
		return nil, err
	}

	ex, err := b.link(ctx, mod)
	if err != nil {
		return nil, err
	}

	ex.views.Reset()
	if ex.Has(startExport) {
		created := newHandleTracker()
		b.heap.Subscribe(created)
		_, err := ex.Call(ctx, startExport)
		b.heap.Unsubscribe(created)
		if err != nil {
			ex.close(ctx)
			if n := created.release(b.heap); n > 0 {
				b.logger.Debug("released handles of failed start", zap.Int("handles", n))
			}
			return nil, err
		}
	}

	b.logger.Info("module instantiated",
		zap.Stringer("source", src.kind),
		zap.Int("imports", len(mod.Imports())),
		zap.Uint32("handle_base", uint32(b.heap.Base())))
	return ex, nil
}

func (b *Bridge) compile(ctx context.Context, src *Source, streaming bool) (*engine.WazeroModule, error) {
	switch src.kind {
	case sourceBytes:
		return b.engine.Compile(ctx, src.data)

	case sourceCompiled:
		if src.compiled == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "nil compiled module")
		}
		return b.engine.Module(src.compiled), nil

	case sourceFile:
		data, err := os.ReadFile(src.location)
		if err != nil {
			notFound := errors.NotFound(errors.PhaseLoad, "module file", src.location)
			notFound.Cause = err
			return nil, notFound
		}
		return b.engine.Compile(ctx, data)

	case sourceResponse:
		resp := src.response
		if resp == nil || resp.Body == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "response has no body")
		}
		defer resp.Body.Close()
		return b.compileResponse(ctx, resp.Header.Get("Content-Type"), resp.Body, streaming)

	case sourceReader:
		if src.reader == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "nil reader")
		}
		return b.compileResponse(ctx, src.contentType, src.reader, streaming)

	case sourceURL:
		resp, err := b.fetch(ctx, src.location)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return b.compileResponse(ctx, resp.Header.Get("Content-Type"), resp.Body, streaming)
	}
	return nil, errors.Unsupported(errors.PhaseLoad, "source kind "+src.kind.String())
}

// compileResponse tries streaming compilation first. When that fails for a
// response not served as application/wasm it warns and compiles the
// buffered body instead.
func (b *Bridge) compileResponse(ctx context.Context, contentType string, body io.Reader, streaming bool) (*engine.WazeroModule, error) {
	if streaming {
		mod, err := b.compileStreaming(ctx, contentType, body)
		if err == nil {
			return mod, nil
		}
		if contentType == WasmMIMEType {
			return nil, err
		}
		b.logger.Warn(fallbackWarning,
			zap.String("content_type", contentType),
			zap.Error(err))
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Load("read response body", err)
	}
	return b.engine.Compile(ctx, data)
}

func (b *Bridge) compileStreaming(ctx context.Context, contentType string, body io.Reader) (*engine.WazeroModule, error) {
	if contentType != WasmMIMEType {
		return nil, errors.MIMEType(contentType)
	}
	return b.engine.CompileStream(ctx, body)
}

func (b *Bridge) fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "build request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Load("fetch "+url, err)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Name(url).
			Detail("fetch: %s", resp.Status).
			Build()
	}
	return resp, nil
}
