package sim

// VTimeInSec is a point on the simulated timeline, in seconds.
type VTimeInSec float64

// An Event is something that happens to one handler at one point in time.
type Event interface {
	// Time returns when the event happens.
	Time() VTimeInSec

	// Handler returns the handler that processes the event.
	Handler() Handler

	// IsSecondary tells if the event runs after all the primary events of the
	// same time.
	IsSecondary() bool
}

// EventBase provides the common fields of events.
type EventBase struct {
	ID        string
	time      VTimeInSec
	handler   Handler
	secondary bool
}

// NewEventBase creates a new EventBase.
func NewEventBase(t VTimeInSec, handler Handler) *EventBase {
	e := new(EventBase)
	e.ID = GetIDGenerator().Generate()
	e.time = t
	e.handler = handler

	return e
}

// Time returns the time that the event is going to happen.
func (e EventBase) Time() VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
//
// A component may only schedule events for itself. The handler is therefore
// always the component that scheduled the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// IsSecondary returns true if the event is a secondary event.
func (e EventBase) IsSecondary() bool {
	return e.secondary
}

// A Handler processes events.
type Handler interface {
	Handle(e Event) error
}
