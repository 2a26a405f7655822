package fsm

import "time"

// EventKind distinguishes lifecycle notifications.
type EventKind uint8

const (
	// EventEntered fires after an entry's phase becomes Entered.
	EventEntered EventKind = iota + 1
	// EventTicked fires after a tick has been accounted, before the callback.
	EventTicked
	// EventExited fires after an entry's phase becomes Exited.
	EventExited
	// EventPaused fires when the machine transitions to paused.
	EventPaused
	// EventResumed fires when the machine transitions out of paused.
	EventResumed
	// EventPopped fires after Pop removes an exited entry from the stack.
	// Depth is the depth after removal.
	EventPopped
)

// String returns the lowercase event name.
func (k EventKind) String() string {
	switch k {
	case EventEntered:
		return "entered"
	case EventTicked:
		return "ticked"
	case EventExited:
		return "exited"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventPopped:
		return "popped"
	default:
		return "unknown"
	}
}

// Event is a synchronous lifecycle notification.
//
// State is empty for pause/resume events. Cadence, First and Delta are only
// meaningful for EventTicked.
type Event struct {
	Kind        EventKind
	Machine     string
	State       Key
	Cadence     Cadence
	First       bool
	Delta       time.Duration
	TimeInState time.Duration
	Depth       int
}

// Listener receives Events. Listeners are called synchronously on the
// dispatching goroutine and must not block. They have no error channel.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// OnEvent calls f(ev).
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}
