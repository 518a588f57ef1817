package bridge

import (
	"sync"

	"github.com/wippyai/wasm-bridge/heap"
)

// handleTracker records handles created while it is subscribed and still
// live, so an aborted run can hand them back.
type handleTracker struct {
	mu   sync.Mutex
	live map[heap.Handle]struct{}
}

func newHandleTracker() *handleTracker {
	return &handleTracker{live: make(map[heap.Handle]struct{})}
}

// OnHeapEvent implements heap.Observer.
func (t *handleTracker) OnHeapEvent(e heap.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case heap.EventCreated:
		t.live[e.Handle] = struct{}{}
	case heap.EventDropped:
		delete(t.live, e.Handle)
	}
}

// release drops every recorded handle and returns how many there were.
func (t *handleTracker) release(table *heap.Table) int {
	t.mu.Lock()
	handles := make([]heap.Handle, 0, len(t.live))
	for h := range t.live {
		handles = append(handles, h)
	}
	clear(t.live)
	t.mu.Unlock()

	for _, h := range handles {
		table.Drop(h)
	}
	return len(handles)
}
