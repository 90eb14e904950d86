package rules

// Injection selects what an action or predicate sees for an input slot.
type Injection string

const (
	// InjectByValue passes the tag's raw value. It is the default.
	InjectByValue Injection = "value"
	// InjectByTag passes the ir.Tag wrapper, including lineage ids.
	InjectByTag Injection = "tag"
)

// Arity is the number of tags an action produces per execution.
type Arity string

const (
	// Single produces one tag. A nil result produces none.
	Single Arity = "SINGLE"
	// Multiple expects a slice or array; each element becomes a
	// sibling tag with the same parents.
	Multiple Arity = "MULTIPLE"
)

// Predicate is a guard condition over the bound inputs.
// An error aborts the whole diagnosis, false only rejects this binding.
type Predicate func(in Input) (bool, error)

// ActionFunc computes the value(s) of the produced tag type.
type ActionFunc func(in Input) (any, error)

// InputSpec declares one typed input slot.
type InputSpec struct {
	TagType   string    `json:"tag_type"`
	Optional  bool      `json:"optional,omitempty"`
	Injection Injection `json:"injection,omitempty"`
}

// ConditionSpec declares a named guard.
// Reads lists the input tag types the predicate may look at; empty
// means every bound input.
type ConditionSpec struct {
	Name      string    `json:"name"`
	Hint      string    `json:"hint,omitempty"`
	Reads     []string  `json:"reads,omitempty"`
	Predicate Predicate `json:"-"`
}

// ActionSpec declares what a rule produces.
type ActionSpec struct {
	Produces string     `json:"produces"`
	Arity    Arity      `json:"arity"`
	Func     ActionFunc `json:"-"`
}

// VariableSpec declares a session variable the rule reads.
// Default is used when an optional variable is not supplied.
type VariableSpec struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// Descriptor is the authored, unvalidated form of a rule.
// Actions is a list so that descriptors declaring zero or several
// actions can be reported.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Inputs      []InputSpec     `json:"inputs"`
	Conditions  []ConditionSpec `json:"conditions,omitempty"`
	Actions     []ActionSpec    `json:"actions"`
	Variables   []VariableSpec  `json:"variables,omitempty"`
}

// New starts a descriptor for the named rule.
func New(name string) *Descriptor {
	return &Descriptor{Name: name}
}

// Describe sets a human readable description.
func (d *Descriptor) Describe(text string) *Descriptor {
	d.Description = text
	return d
}

// InputOption configures an input slot.
type InputOption func(*InputSpec)

// Optional marks the slot optional: it is bound when a correlated tag
// exists and left absent otherwise.
func Optional() InputOption {
	return func(s *InputSpec) { s.Optional = true }
}

// ByTag injects the ir.Tag wrapper instead of its value.
func ByTag() InputOption {
	return func(s *InputSpec) { s.Injection = InjectByTag }
}

// Input appends an input slot of the given tag type.
func (d *Descriptor) Input(tagType string, opts ...InputOption) *Descriptor {
	spec := InputSpec{TagType: tagType, Injection: InjectByValue}
	for _, opt := range opts {
		opt(&spec)
	}
	d.Inputs = append(d.Inputs, spec)
	return d
}

// ConditionOption configures a guard.
type ConditionOption func(*ConditionSpec)

// WithHint sets the explanation recorded when the guard fails.
func WithHint(hint string) ConditionOption {
	return func(s *ConditionSpec) { s.Hint = hint }
}

// Reading restricts the guard to the given input tag types.
func Reading(tagTypes ...string) ConditionOption {
	return func(s *ConditionSpec) { s.Reads = append(s.Reads, tagTypes...) }
}

// Condition appends a guard. Guards run in declaration order.
func (d *Descriptor) Condition(name string, pred Predicate, opts ...ConditionOption) *Descriptor {
	spec := ConditionSpec{Name: name, Predicate: pred}
	for _, opt := range opts {
		opt(&spec)
	}
	d.Conditions = append(d.Conditions, spec)
	return d
}

// Action declares a SINGLE action producing tags of the given type.
func (d *Descriptor) Action(produces string, fn ActionFunc) *Descriptor {
	d.Actions = append(d.Actions, ActionSpec{Produces: produces, Arity: Single, Func: fn})
	return d
}

// ActionMultiple declares a MULTIPLE action producing sibling tags.
func (d *Descriptor) ActionMultiple(produces string, fn ActionFunc) *Descriptor {
	d.Actions = append(d.Actions, ActionSpec{Produces: produces, Arity: Multiple, Func: fn})
	return d
}

// Variable declares a required session variable.
func (d *Descriptor) Variable(name string) *Descriptor {
	d.Variables = append(d.Variables, VariableSpec{Name: name})
	return d
}

// OptionalVariable declares a session variable with a default.
func (d *Descriptor) OptionalVariable(name string, def any) *Descriptor {
	d.Variables = append(d.Variables, VariableSpec{Name: name, Optional: true, Default: def})
	return d
}
