package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rootcause/internal/rules"
)

// Configuration is the engine setup supplied by the embedding
// application. It is validated once, by the session factory.
type Configuration[I, R any] struct {
	// Descriptors is the rule set, in declaration order.
	Descriptors []*rules.Descriptor

	// Collector builds the per-trace result.
	Collector ResultCollector[I, R]

	// StorageFactory creates the output storage of each new session.
	StorageFactory func() Storage
}

// DefaultConfiguration wires descriptors to DefaultCollector and
// DefaultStorage.
func DefaultConfiguration[I any](descs ...*rules.Descriptor) Configuration[I, *DefaultResult[I]] {
	return Configuration[I, *DefaultResult[I]]{
		Descriptors:    descs,
		Collector:      DefaultCollector[I]{},
		StorageFactory: NewDefaultStorage,
	}
}

// SessionFactory creates, passivates and destroys pooled sessions.
//
// Rule definitions are built from the descriptors once, on first use,
// and shared read-only by every session the factory makes.
//
// Thread-safety: safe for concurrent use.
type SessionFactory[I, R any] struct {
	config Configuration[I, R]
	opts   options

	once sync.Once
	defs []*rules.Definition
	err  error
}

// NewSessionFactory creates a factory. Configuration problems surface on
// the first MakeObject or Prepare call.
func NewSessionFactory[I, R any](config Configuration[I, R], opts ...Option) *SessionFactory[I, R] {
	return &SessionFactory[I, R]{config: config, opts: newOptions(opts)}
}

// Prepare validates the configuration and builds the rule definitions.
// The outcome is computed once and cached.
//
// Fails with ErrInvalidConfiguration for an empty rule set, with
// ErrMissingCollaborator for a nil collector or storage factory, and with
// a *rules.DefinitionError for malformed descriptors.
func (f *SessionFactory[I, R]) Prepare() ([]*rules.Definition, error) {
	f.once.Do(func() {
		f.defs, f.err = f.build()
	})
	return f.defs, f.err
}

func (f *SessionFactory[I, R]) build() ([]*rules.Definition, error) {
	if len(f.config.Descriptors) == 0 {
		return nil, fmt.Errorf("%w: rule descriptor set is empty", ErrInvalidConfiguration)
	}
	if f.config.Collector == nil {
		return nil, fmt.Errorf("%w: result collector is nil", ErrMissingCollaborator)
	}
	if f.config.StorageFactory == nil {
		return nil, fmt.Errorf("%w: storage factory is nil", ErrMissingCollaborator)
	}
	defs, err := rules.Build(f.config.Descriptors)
	if err != nil {
		return nil, fmt.Errorf("build rule definitions: %w", err)
	}
	return defs, nil
}

// MakeObject builds a new session with a fresh context.
func (f *SessionFactory[I, R]) MakeObject(ctx context.Context) (*Session[I, R], error) {
	defs, err := f.Prepare()
	if err != nil {
		return nil, err
	}
	storage := f.config.StorageFactory()
	if storage == nil {
		return nil, fmt.Errorf("%w: storage factory returned nil", ErrMissingCollaborator)
	}

	s := newSession(f.opts.ids.Generate(), defs, f.config.Collector, storage, f.opts.maxExecutions)
	sessionsTotal.WithLabelValues("created").Inc()
	return s, nil
}

// PassivateObject implements pool.Factory.
func (f *SessionFactory[I, R]) PassivateObject(_ context.Context, s *Session[I, R]) error {
	return s.Passivate()
}

// DestroyObject implements pool.Factory.
func (f *SessionFactory[I, R]) DestroyObject(_ context.Context, s *Session[I, R]) error {
	s.Destroy()
	return nil
}
