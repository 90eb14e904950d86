package engine

// DefaultPoolSize is the default number of sessions that may run at once.
const DefaultPoolSize = 8

// Option configures an Engine or a SessionFactory.
type Option func(*options)

type options struct {
	poolSize      int
	maxExecutions int
	ids           SessionIDGenerator
}

func newOptions(opts []Option) options {
	o := options{
		poolSize: DefaultPoolSize,
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPoolSize sets the maximum number of concurrent sessions.
//
// Default: DefaultPoolSize. Values below one are treated as one.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithMaxExecutions caps rule executions per diagnosis.
//
// Default: 0 (unlimited). The engine relies on rule guards to stop
// self-recursive rules; set a cap when rule sets are not trusted.
func WithMaxExecutions(n int) Option {
	return func(o *options) {
		o.maxExecutions = n
	}
}

// WithSessionIDs replaces the UUIDv7 session id generator.
// Tests use it with FixedGenerator for deterministic output.
func WithSessionIDs(gen SessionIDGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.ids = gen
		}
	}
}
