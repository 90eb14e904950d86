package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rootcause/internal/pool"
	"github.com/roach88/rootcause/internal/rules"
)

var tracer = otel.Tracer("rootcause.engine")

// Engine diagnoses traces on a bounded pool of reusable sessions.
//
// Thread-safety model:
//   - Diagnose and DiagnoseAll: safe from any goroutine
//   - each session runs on exactly one goroutine at a time
//   - rule definitions are immutable and shared by all sessions
type Engine[I, R any] struct {
	factory *SessionFactory[I, R]
	pool    *pool.Pool[*Session[I, R]]
	defs    []*rules.Definition
}

// Request is one trace to diagnose with its session variables.
type Request[I any] struct {
	Input     I
	Variables map[string]any
}

// New validates the configuration and creates an engine.
// Configuration errors are reported here, before any trace is seen.
func New[I, R any](config Configuration[I, R], opts ...Option) (*Engine[I, R], error) {
	o := newOptions(opts)
	factory := NewSessionFactory(config, opts...)
	defs, err := factory.Prepare()
	if err != nil {
		return nil, err
	}

	slog.Info("engine configured",
		"rules", len(defs),
		"pool_size", o.poolSize,
		"max_executions", o.maxExecutions,
	)

	return &Engine[I, R]{
		factory: factory,
		pool:    pool.New[*Session[I, R]](factory, o.poolSize),
		defs:    defs,
	}, nil
}

// NewDefault creates an engine with DefaultCollector and DefaultStorage.
func NewDefault[I any](descs []*rules.Descriptor, opts ...Option) (*Engine[I, *DefaultResult[I]], error) {
	return New(DefaultConfiguration[I](descs...), opts...)
}

// Definitions returns the validated rule set in declaration order.
func (e *Engine[I, R]) Definitions() []*rules.Definition {
	return e.defs
}

// Diagnose runs one trace to its fixpoint on a pooled session.
//
// On success the session is passivated and returned to the pool. On any
// error the session is destroyed, since its context may be partially
// populated.
func (e *Engine[I, R]) Diagnose(ctx context.Context, input I, variables map[string]any) (R, error) {
	var zero R
	ctx, span := tracer.Start(ctx, "engine.Diagnose",
		trace.WithAttributes(attribute.Int("rules", len(e.defs))),
	)
	defer span.End()
	start := time.Now()

	s, err := e.pool.Acquire(ctx)
	if err != nil {
		diagnosesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire session")
		return zero, fmt.Errorf("acquire session: %w", err)
	}
	sessionsInUse.Inc()
	defer sessionsInUse.Dec()
	span.SetAttributes(attribute.String("session_id", s.ID()))

	result, err := e.run(ctx, s, input, variables)
	if err != nil {
		slog.Error("diagnosis failed",
			"session_id", s.ID(),
			"error", err,
		)
		if derr := e.pool.Invalidate(ctx, s); derr != nil {
			slog.Warn("destroy session failed", "session_id", s.ID(), "error", derr)
		}
		diagnosesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	if err := e.pool.Release(ctx, s); err != nil {
		// The result is already collected; only the session is lost.
		slog.Warn("release session failed", "session_id", s.ID(), "error", err)
	}

	elapsed := time.Since(start)
	diagnosesTotal.WithLabelValues("ok").Inc()
	diagnosisDuration.Observe(elapsed.Seconds())
	span.SetStatus(codes.Ok, "")

	slog.Info("diagnosis complete",
		"session_id", s.ID(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (e *Engine[I, R]) run(ctx context.Context, s *Session[I, R], input I, variables map[string]any) (R, error) {
	var zero R
	if err := s.Activate(input, variables); err != nil {
		return zero, err
	}
	return s.Call(ctx)
}

// DiagnoseAll diagnoses traces in parallel, at most pool size at a time.
// Results are in request order. The first error cancels the remaining
// requests and is returned.
func (e *Engine[I, R]) DiagnoseAll(ctx context.Context, reqs []Request[I]) ([]R, error) {
	results := make([]R, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pool.Size())
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Diagnose(gctx, req.Input, req.Variables)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stats returns the session pool counters.
func (e *Engine[I, R]) Stats() pool.Stats {
	return e.pool.Stats()
}

// Close destroys idle sessions. Diagnoses still running finish, and
// their sessions are destroyed on release.
func (e *Engine[I, R]) Close(ctx context.Context) error {
	slog.Info("engine stopping")
	return e.pool.Close(ctx)
}
