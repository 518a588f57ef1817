// Package heap provides the handle table that stands between a module and
// the host values it references.
//
// A module never sees host values directly. It receives small integer
// handles and passes them back to host callbacks, which resolve them here:
//
//	t := heap.New()
//	h := t.Add(doc)          // hand h to the module
//	v, ok := t.Get(h)        // resolve it in a callback
//	v, ok = t.Take(h)        // resolve and release in one step
//	t.Drop(h)                // release
//
// # Reserved Slots
//
// Four slots are pre-seeded and never reclaimed:
//
//	base+0  undefined
//	base+1  null
//	base+2  true
//	base+3  false
//
// The base is 0 by default. WithBase(128) reproduces the layout wasm-bindgen
// glue uses, where slots 0..127 hold undefined and the sentinels follow.
//
// # Free List
//
// Released slots are threaded into a singly linked free list stored in the
// slots themselves. The most recently released slot is reused first. When
// the free list is empty and the backing array is full, capacity doubles.
//
// # Observers
//
// Observers receive EventCreated and EventDropped for every non-reserved
// handle. Values implementing Dropper have Drop called on release.
package heap
