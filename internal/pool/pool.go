// Package pool provides a generic bounded object pool.
//
// The pool is the only synchronization boundary between concurrent
// callers and the objects it hands out: an object is owned by at most one
// caller between Acquire and Release/Invalidate.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool closed")

// Factory creates, recycles and destroys pooled objects.
type Factory[T any] interface {
	// MakeObject builds a fresh object.
	MakeObject(ctx context.Context) (T, error)
	// PassivateObject resets an object before it returns to the idle set.
	PassivateObject(ctx context.Context, obj T) error
	// DestroyObject releases an object that will not be reused.
	DestroyObject(ctx context.Context, obj T) error
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Size      int `json:"size"`
	Idle      int `json:"idle"`
	InUse     int `json:"in_use"`
	Created   int `json:"created"`
	Destroyed int `json:"destroyed"`
}

// Pool bounds the number of objects in use to its size.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool[T any] struct {
	factory Factory[T]
	sem     *semaphore.Weighted
	size    int

	mu     sync.Mutex
	idle   []T
	closed bool
	stats  Stats
}

// New creates a pool holding at most size objects in use at once.
// A size below one is treated as one.
func New[T any](factory Factory[T], size int) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{
		factory: factory,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		stats:   Stats{Size: size},
	}
}

// Acquire returns an idle object or makes a new one, blocking while
// size objects are in use. It fails with ctx.Err() if ctx ends first.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("acquire: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return zero, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		obj := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.stats.InUse++
		p.mu.Unlock()
		return obj, nil
	}
	p.mu.Unlock()

	obj, err := p.factory.MakeObject(ctx)
	if err != nil {
		p.sem.Release(1)
		return zero, err
	}

	p.mu.Lock()
	p.stats.Created++
	p.stats.InUse++
	p.mu.Unlock()
	return obj, nil
}

// Release passivates obj and returns it to the idle set. If
// passivation fails the object is destroyed instead and the
// passivation error is returned.
func (p *Pool[T]) Release(ctx context.Context, obj T) error {
	if err := p.factory.PassivateObject(ctx, obj); err != nil {
		derr := p.Invalidate(ctx, obj)
		return errors.Join(fmt.Errorf("passivate: %w", err), derr)
	}

	p.mu.Lock()
	p.stats.InUse--
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return p.destroy(ctx, obj)
	}
	p.idle = append(p.idle, obj)
	p.mu.Unlock()
	p.sem.Release(1)
	return nil
}

// Invalidate destroys an acquired object instead of returning it.
func (p *Pool[T]) Invalidate(ctx context.Context, obj T) error {
	p.mu.Lock()
	p.stats.InUse--
	p.mu.Unlock()
	p.sem.Release(1)
	return p.destroy(ctx, obj)
}

// Close destroys idle objects and makes later Acquire calls fail.
// Objects still in use are destroyed when they are released.
func (p *Pool[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, obj := range idle {
		if err := p.destroy(ctx, obj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = len(p.idle)
	return s
}

// Size returns the maximum number of objects in use at once.
func (p *Pool[T]) Size() int {
	return p.size
}

func (p *Pool[T]) destroy(ctx context.Context, obj T) error {
	err := p.factory.DestroyObject(ctx, obj)
	p.mu.Lock()
	p.stats.Destroyed++
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
