package env

import (
	"strings"
	"sync"
)

// Callable is the Go implementation behind a Function.
type Callable func(this Value, args []Value) (Value, error)

// Function is a callable host value.
type Function struct {
	Name string
	Body string
	call Callable
}

// NewFunction wraps fn as a named function.
func NewFunction(name string, fn Callable) *Function {
	return &Function{Name: name, call: fn}
}

// Call invokes the function with the given receiver.
func (f *Function) Call(this Value, args ...Value) (Value, error) {
	if f.call == nil {
		return nil, TypeError("function is not callable")
	}
	return f.call(this, args)
}

// Registry maps function bodies to Go implementations. Constructing a
// function from source looks the body up here.
type Registry struct {
	mu     sync.RWMutex
	bodies map[string]Callable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]Callable)}
}

// Register binds a function body to an implementation. Bodies are matched
// after trimming surrounding whitespace.
func (r *Registry) Register(body string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[normalizeBody(body)] = fn
}

// Lookup returns the implementation registered for body.
func (r *Registry) Lookup(body string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.bodies[normalizeBody(body)]
	return fn, ok
}

// Len returns the number of registered bodies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bodies)
}

func normalizeBody(body string) string {
	return strings.TrimSuffix(strings.TrimSpace(body), ";")
}
