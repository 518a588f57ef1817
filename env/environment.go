package env

import (
	"fmt"
	"strings"
)

// Context identifies the kind of host the module believes it runs in. It
// decides which global names resolve.
type Context string

const (
	ContextWindow Context = "window"
	ContextWorker Context = "worker"
	ContextNode   Context = "node"
)

// ParseContext parses a context name.
func ParseContext(s string) (Context, error) {
	switch c := Context(strings.ToLower(strings.TrimSpace(s))); c {
	case ContextWindow, ContextWorker, ContextNode:
		return c, nil
	case "":
		return ContextWindow, nil
	}
	return "", fmt.Errorf("unknown environment context %q", s)
}

var contextGlobals = map[Context][]string{
	ContextWindow: {"self", "window", "globalThis"},
	ContextWorker: {"self", "globalThis"},
	ContextNode:   {"globalThis", "global"},
}

// Environment is the host side of the bridge: the global object, the
// document, the console and the function registry.
type Environment struct {
	context   Context
	global    Value
	window    *Window
	document  *Document
	console   Console
	functions *Registry
}

// Option configures an Environment.
type Option func(*config)

type config struct {
	context   Context
	markup    string
	console   Console
	functions *Registry
}

// WithContext selects the calling context. The default is ContextWindow.
func WithContext(c Context) Option {
	return func(cfg *config) { cfg.context = c }
}

// WithMarkup sets the initial document markup.
func WithMarkup(markup string) Option {
	return func(cfg *config) { cfg.markup = markup }
}

// WithConsole sets the console that receives module output.
func WithConsole(c Console) Option {
	return func(cfg *config) { cfg.console = c }
}

// WithRegistry sets the registry used to construct functions from source.
func WithRegistry(r *Registry) Option {
	return func(cfg *config) { cfg.functions = r }
}

// New creates an environment.
func New(opts ...Option) (*Environment, error) {
	cfg := config{
		context: ContextWindow,
		markup:  DefaultMarkup,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.console == nil {
		cfg.console = NewZapConsole(nil)
	}
	if cfg.functions == nil {
		cfg.functions = NewRegistry()
	}
	if _, ok := contextGlobals[cfg.context]; !ok {
		return nil, fmt.Errorf("unknown environment context %q", cfg.context)
	}

	doc, err := ParseDocument(cfg.markup)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	e := &Environment{
		context:   cfg.context,
		document:  doc,
		console:   cfg.console,
		functions: cfg.functions,
	}

	switch cfg.context {
	case ContextWindow:
		e.window = NewWindow(doc)
		e.global = e.window
	case ContextWorker:
		g := NewGlobal("DedicatedWorkerGlobalScope")
		g.Set("self", g)
		g.Set("globalThis", g)
		e.global = g
	case ContextNode:
		g := NewGlobal("global")
		g.Set("globalThis", g)
		g.Set("global", g)
		e.global = g
	}

	Logger().Debug("environment created", zapContext(cfg.context))
	return e, nil
}

// Context returns the calling context.
func (e *Environment) Context() Context { return e.context }

// Global returns the global object.
func (e *Environment) Global() Value { return e.global }

// Window returns the window, or nil outside a window context.
func (e *Environment) Window() *Window { return e.window }

// Document returns the document. It exists in every context so hosts can
// inspect what the module rendered.
func (e *Environment) Document() *Document { return e.document }

// Console returns the console.
func (e *Environment) Console() Console { return e.console }

// Functions returns the function registry.
func (e *Environment) Functions() *Registry { return e.functions }

// Lookup resolves a global name. Names the context does not define fail
// with a ReferenceError.
func (e *Environment) Lookup(name string) (Value, error) {
	for _, n := range contextGlobals[e.context] {
		if n == name {
			return e.global, nil
		}
	}
	return nil, ReferenceError(name + " is not defined")
}

// NewFunction constructs a function from its body. "return this" is built
// in; other bodies must be registered. Unknown bodies yield a function that
// fails with an EvalError when called.
func (e *Environment) NewFunction(body string) *Function {
	f := &Function{Name: "anonymous", Body: body}

	if normalizeBody(body) == "return this" {
		f.call = func(this Value, _ []Value) (Value, error) {
			if IsNullish(this) {
				return e.global, nil
			}
			return this, nil
		}
		return f
	}

	if fn, ok := e.functions.Lookup(body); ok {
		f.call = fn
		return f
	}

	f.call = func(Value, []Value) (Value, error) {
		return nil, EvalError("function body is not registered: " + body)
	}
	return f
}
