package fsm

// StateRef is one entry of a Machine's stack: a State reference paired with
// its lifecycle Phase.
//
// Identity is defined by the State's key alone. Two refs to the same State
// in different phases are Equal, which keeps lookups stable while the phase
// advances.
type StateRef struct {
	State State
	Phase Phase
}

// Key returns the registry key of the referenced State.
func (r StateRef) Key() Key {
	return KeyOf(r.State)
}

// Equal reports whether r and other reference the same State.
func (r StateRef) Equal(other StateRef) bool {
	return r.Key() == other.Key()
}
