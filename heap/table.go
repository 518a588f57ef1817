package heap

import (
	"sync"

	"github.com/wippyai/wasm-bridge/env"
)

const defaultCapacity = 8

// Table maps handles to host values.
//
// Slots live in one backing array. Released slots hold a free marker that
// links to the next released slot, so the free list costs no extra storage.
// When the free list is empty and the array is full, capacity doubles.
type Table struct {
	mu        sync.Mutex
	slots     []any
	next      Handle
	base      Handle
	live      int
	observers []Observer
	obsMu     sync.RWMutex
}

// Option configures a Table.
type Option func(*Table)

// WithBase places the reserved slots at base..base+3. Slots below base hold
// undefined and are never reclaimed either.
func WithBase(base uint32) Option {
	return func(t *Table) { t.base = Handle(base) }
}

// WithCapacity sets the initial slot capacity.
func WithCapacity(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.slots = make([]any, 0, n)
		}
	}
}

// WithObserver subscribes o before any handle is created.
func WithObserver(o Observer) Option {
	return func(t *Table) { t.observers = append(t.observers, o) }
}

// New creates a table with the reserved slots in place.
func New(opts ...Option) *Table {
	t := &Table{slots: make([]any, 0, defaultCapacity)}
	for _, opt := range opts {
		opt(t)
	}

	n := int(t.base + reservedSlots)
	for cap(t.slots) < n {
		t.grow()
	}
	t.slots = t.slots[:n]
	for i := 0; i < int(t.base); i++ {
		t.slots[i] = env.Undefined
	}
	t.slots[t.base+offsetUndefined] = env.Undefined
	t.slots[t.base+offsetNull] = nil
	t.slots[t.base+offsetTrue] = true
	t.slots[t.base+offsetFalse] = false
	t.next = Handle(n)
	return t
}

// Base returns the index of the first reserved slot.
func (t *Table) Base() Handle { return t.base }

// Undefined returns the reserved handle for undefined.
func (t *Table) Undefined() Handle { return t.base + offsetUndefined }

// Null returns the reserved handle for null.
func (t *Table) Null() Handle { return t.base + offsetNull }

// Bool returns the reserved handle for b.
func (t *Table) Bool(b bool) Handle {
	if b {
		return t.base + offsetTrue
	}
	return t.base + offsetFalse
}

// IsReserved reports whether h is a slot that is never reclaimed.
func (t *Table) IsReserved(h Handle) bool {
	return h < t.base+reservedSlots
}

// Add stores v and returns its handle, reusing a released slot when one
// exists.
func (t *Table) Add(v any) Handle {
	t.mu.Lock()
	if int(t.next) == len(t.slots) {
		if len(t.slots) == cap(t.slots) {
			t.grow()
		}
		t.slots = t.slots[:len(t.slots)+1]
		t.slots[t.next] = free{next: t.next + 1}
	}

	h := t.next
	t.next = t.slots[h].(free).next
	t.slots[h] = v
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: v})
	return h
}

// grow doubles capacity into a fresh backing array.
func (t *Table) grow() {
	newCap := cap(t.slots) * 2
	if newCap < defaultCapacity {
		newCap = defaultCapacity
	}
	slots := make([]any, len(t.slots), newCap)
	copy(slots, t.slots)
	t.slots = slots
}

// Get returns the value for h. ok is false for out-of-range or released
// handles.
func (t *Table) Get(h Handle) (v any, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(h)
}

func (t *Table) get(h Handle) (any, bool) {
	if int(h) >= len(t.slots) {
		return nil, false
	}
	v := t.slots[h]
	if _, isFree := v.(free); isFree {
		return nil, false
	}
	return v, true
}

// Drop releases h. Reserved, out-of-range and already released handles are
// ignored.
func (t *Table) Drop(h Handle) {
	t.take(h)
}

// Take returns the value for h and releases the handle. Reserved handles
// are returned without being released.
func (t *Table) Take(h Handle) (any, bool) {
	if t.IsReserved(h) {
		return t.Get(h)
	}
	return t.take(h)
}

func (t *Table) take(h Handle) (any, bool) {
	if t.IsReserved(h) {
		return nil, false
	}

	t.mu.Lock()
	v, ok := t.get(h)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	t.slots[h] = free{next: t.next}
	t.next = h
	t.live--
	t.mu.Unlock()

	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, Value: v})
	return v, true
}

// Clone stores the value of h in a new slot.
func (t *Table) Clone(h Handle) (Handle, bool) {
	v, ok := t.Get(h)
	if !ok {
		return 0, false
	}
	return t.Add(v), true
}

// Live returns the number of occupied slots excluding reserved ones.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// FreeLen returns the length of the free list, counting the unused tail of
// the backing array.
func (t *Table) FreeLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := cap(t.slots) - len(t.slots)
	for h := t.next; int(h) < len(t.slots); h = t.slots[h].(free).next {
		n++
	}
	return n
}

// Len returns the number of slots in use or released, including reserved
// ones.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Cap returns the capacity of the backing array.
func (t *Table) Cap() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cap(t.slots)
}

// Each calls fn for every live, non-reserved handle in index order until fn
// returns false.
func (t *Table) Each(fn func(Handle, any) bool) {
	t.mu.Lock()
	type entry struct {
		h Handle
		v any
	}
	var entries []entry
	for i := int(t.base + reservedSlots); i < len(t.slots); i++ {
		if _, isFree := t.slots[i].(free); !isFree {
			entries = append(entries, entry{Handle(i), t.slots[i]})
		}
	}
	t.mu.Unlock()

	for _, e := range entries {
		if !fn(e.h, e.v) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHeapEvent(e)
	}
}

// GetAs returns the value for h if it has type T.
func GetAs[T any](t *Table, h Handle) (T, bool) {
	var zero T
	v, ok := t.Get(h)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
