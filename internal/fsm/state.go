package fsm

import (
	"reflect"
	"time"
)

// Key identifies a State within one Machine's registry.
type Key string

// State is the unit of behavior a Machine drives.
//
// The Machine references States but never constructs or destroys them.
// A State is registered under KeyOf(state).
//
// Tick receives the elapsed time since the previous tick of the same
// cadence. It is called for every tick after the first; the first tick goes
// to FirstTick when the State implements FirstTicker, otherwise to Tick.
type State interface {
	Enter(m *Machine)
	Tick(m *Machine, delta time.Duration)
	Exit(m *Machine)
}

// FirstTicker is implemented by States that need a distinguished first
// frame. Without it the first tick is delivered to Tick.
type FirstTicker interface {
	FirstTick(m *Machine, delta time.Duration)
}

// FixedTicker is implemented by States that handle the fixed-rate cadence
// separately. Without it fixed ticks are delivered to Tick.
type FixedTicker interface {
	FixedTick(m *Machine, delta time.Duration)
}

// FirstFixedTicker is implemented by States that need a distinguished first
// fixed-rate frame. Without it the first fixed tick falls back to
// FixedTick, then FirstTick, then Tick.
type FirstFixedTicker interface {
	FirstFixedTick(m *Machine, delta time.Duration)
}

// Keyed lets a State choose its own registry key. States that do not
// implement Keyed are keyed by their Go type.
type Keyed interface {
	Key() Key
}

// KeyOf returns the registry key of s.
//
// Keyed states report their own key. Other states are keyed by the
// package-qualified name of their type, dereferencing one pointer level so
// that T and *T share a key. A nil state has the empty key.
func KeyOf(s State) Key {
	if s == nil {
		return ""
	}
	if k, ok := s.(Keyed); ok {
		return k.Key()
	}
	return typeKey(reflect.TypeOf(s))
}

// KeyFor returns the type-derived key for T.
//
// It matches KeyOf only for states that do not implement Keyed.
//
//	m.Push(fsm.KeyFor[*Idle]())
func KeyFor[T State]() Key {
	return typeKey(reflect.TypeFor[T]())
}

func typeKey(t reflect.Type) Key {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return Key(t.String())
	}
	return Key(t.PkgPath() + "." + t.Name())
}
