package heap

// Handle is a slot index handed to the module in place of a host value.
type Handle uint32

// Reserved slot offsets relative to the table base. These slots are
// pre-seeded and never reclaimed.
const (
	offsetUndefined Handle = iota
	offsetNull
	offsetTrue
	offsetFalse
	reservedSlots
)

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHeapEvent(Event)
}

// Dropper is optionally implemented by values that need cleanup when their
// handle is released.
type Dropper interface {
	Drop()
}

// free marks an unoccupied slot and links to the next free slot.
type free struct {
	next Handle
}
