package rules

import (
	"fmt"
	"maps"
	"slices"
)

// Catalog maps function names to implementations so that declarative
// rule files can reference actions and predicates by name.
type Catalog struct {
	Actions    map[string]ActionFunc
	Predicates map[string]Predicate
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Actions:    make(map[string]ActionFunc),
		Predicates: make(map[string]Predicate),
	}
}

// RegisterAction adds a named action. Registering a name twice fails.
func (c *Catalog) RegisterAction(name string, fn ActionFunc) error {
	if _, exists := c.Actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	c.Actions[name] = fn
	return nil
}

// RegisterPredicate adds a named predicate. Registering a name twice fails.
func (c *Catalog) RegisterPredicate(name string, fn Predicate) error {
	if _, exists := c.Predicates[name]; exists {
		return fmt.Errorf("predicate %q already registered", name)
	}
	c.Predicates[name] = fn
	return nil
}

// Action looks up a named action.
func (c *Catalog) Action(name string) (ActionFunc, bool) {
	fn, ok := c.Actions[name]
	return fn, ok
}

// Predicate looks up a named predicate.
func (c *Catalog) Predicate(name string) (Predicate, bool) {
	fn, ok := c.Predicates[name]
	return fn, ok
}

// Merge copies every entry of other into c. Conflicting names fail.
func (c *Catalog) Merge(other *Catalog) error {
	for _, name := range slices.Sorted(maps.Keys(other.Actions)) {
		if err := c.RegisterAction(name, other.Actions[name]); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(other.Predicates)) {
		if err := c.RegisterPredicate(name, other.Predicates[name]); err != nil {
			return err
		}
	}
	return nil
}

// ActionNames returns registered action names, sorted.
func (c *Catalog) ActionNames() []string {
	return slices.Sorted(maps.Keys(c.Actions))
}

// PredicateNames returns registered predicate names, sorted.
func (c *Catalog) PredicateNames() []string {
	return slices.Sorted(maps.Keys(c.Predicates))
}
