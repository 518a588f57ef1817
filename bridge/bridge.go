package bridge

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

const (
	// DefaultPath is the module file a nil source resolves to.
	DefaultPath = "browser_bg.wasm"

	// DefaultHandleBase is the first reserved handle. Bindgen guests assume
	// handles below it are never handed out.
	DefaultHandleBase = 128
)

// Bridge hosts one bindgen module. The module is instantiated at most once;
// later Instantiate calls return the same exports.
type Bridge struct {
	engine  *engine.WazeroEngine
	env     *env.Environment
	heap    *heap.Table
	logger  *zap.Logger
	client  *http.Client
	group   singleflight.Group
	exports *Exports
	cfg     config
	mu      sync.RWMutex
}

type config struct {
	env         *env.Environment
	logger      *zap.Logger
	engineCfg   *engine.Config
	client      *http.Client
	defaultPath string
	heapOpts    []heap.Option
	handleBase  uint32
	streaming   bool
}

// Option configures a Bridge.
type Option func(*config)

// WithEnvironment sets the host environment. The default is a window
// context whose console writes to the bridge logger.
func WithEnvironment(e *env.Environment) Option {
	return func(c *config) { c.env = e }
}

// WithLogger sets the logger. The default is the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStreaming enables or disables streaming compilation of responses.
// It is enabled by default.
func WithStreaming(enabled bool) Option {
	return func(c *config) { c.streaming = enabled }
}

// WithHandleBase sets the index of the first reserved handle.
func WithHandleBase(base uint32) Option {
	return func(c *config) { c.handleBase = base }
}

// WithHeapObserver subscribes o to handle table events.
func WithHeapObserver(o heap.Observer) Option {
	return func(c *config) { c.heapOpts = append(c.heapOpts, heap.WithObserver(o)) }
}

// WithEngineConfig sets the wazero engine configuration.
func WithEngineConfig(cfg *engine.Config) Option {
	return func(c *config) { c.engineCfg = cfg }
}

// WithHTTPClient sets the client FromURL sources are fetched with.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.client = client }
}

// WithDefaultPath sets the module file a nil source resolves to.
func WithDefaultPath(path string) Option {
	return func(c *config) { c.defaultPath = path }
}

// New creates a bridge with its own wazero runtime.
func New(ctx context.Context, opts ...Option) (*Bridge, error) {
	cfg := config{
		streaming:   true,
		handleBase:  DefaultHandleBase,
		defaultPath: DefaultPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}
	if cfg.client == nil {
		cfg.client = http.DefaultClient
	}

	environment := cfg.env
	if environment == nil {
		var err error
		environment, err = env.New(env.WithConsole(env.NewZapConsole(cfg.logger)))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create environment")
		}
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, cfg.engineCfg)
	if err != nil {
		return nil, err
	}

	heapOpts := append([]heap.Option{heap.WithBase(cfg.handleBase)}, cfg.heapOpts...)
	return &Bridge{
		engine: eng,
		env:    environment,
		heap:   heap.New(heapOpts...),
		logger: cfg.logger,
		client: cfg.client,
		cfg:    cfg,
	}, nil
}

// Environment returns the host environment.
func (b *Bridge) Environment() *env.Environment {
	return b.env
}

// Heap returns the handle table.
func (b *Bridge) Heap() *heap.Table {
	return b.heap
}

// Engine returns the engine modules are compiled on.
func (b *Bridge) Engine() *engine.WazeroEngine {
	return b.engine
}

// Exports returns the instantiated module's exports, or nil before the
// first successful instantiation.
func (b *Bridge) Exports() *Exports {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exports
}

// Main runs the module's main export.
func (b *Bridge) Main(ctx context.Context) error {
	ex := b.Exports()
	if ex == nil {
		return errors.NotInitialized(errors.PhaseRuntime, "module")
	}
	return ex.Main(ctx)
}

// Close releases the runtime and the module instance.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.exports = nil
	b.mu.Unlock()
	return b.engine.Close(ctx)
}
