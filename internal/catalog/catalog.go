// Package catalog maps textual state names to state factories.
//
// Configuration files and scenarios name states with strings. A Catalog
// resolves those names to fsm.Keys and builds fresh State values for a new
// machine, so every machine owns its own state instances.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/fsmstack/internal/fsm"
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("state name already registered")

// Factory creates a fresh State instance.
type Factory func() fsm.State

// Catalog is an ordered set of named factories.
//
// Catalog is not safe for concurrent mutation. Build it once, then share
// it read-only.
type Catalog struct {
	factories map[string]Factory
	order     []string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds factory under name.
func (c *Catalog) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("register: empty state name")
	}
	if factory == nil {
		return fmt.Errorf("register %q: nil factory", name)
	}
	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}

	c.factories[name] = factory
	c.order = append(c.order, name)
	return nil
}

// MustRegister is like Register but panics on error.
// Use only in tests or static setup code.
func (c *Catalog) MustRegister(name string, factory Factory) {
	if err := c.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve returns the machine key for name.
func (c *Catalog) Resolve(name string) (fsm.Key, bool) {
	if _, ok := c.factories[name]; !ok {
		return "", false
	}
	return fsm.Key(name), true
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	names := slices.Clone(c.order)
	slices.Sort(names)
	return names
}

// Len returns the number of registered names.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Instance builds one fresh state for name.
//
// The built state must report the key it was registered under; a state
// whose fsm.KeyOf differs would be unreachable by name.
func (c *Catalog) Instance(name string) (fsm.State, error) {
	factory, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("build %q: not registered", name)
	}
	s := factory()
	if s == nil {
		return nil, fmt.Errorf("build %q: factory returned nil", name)
	}
	if key := fsm.KeyOf(s); key != fsm.Key(name) {
		return nil, fmt.Errorf("build %q: state reports key %q", name, key)
	}
	return s, nil
}

// Build invokes every factory in registration order.
func (c *Catalog) Build() ([]fsm.State, error) {
	states := make([]fsm.State, 0, len(c.order))
	for _, name := range c.order {
		s, err := c.Instance(name)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

// NewMachine builds every state and registers them on a new machine
// constructed with opts.
func (c *Catalog) NewMachine(opts ...fsm.Option) (*fsm.Machine, error) {
	states, err := c.Build()
	if err != nil {
		return nil, err
	}
	return fsm.New(append(opts, fsm.WithStates(states...))...), nil
}
