package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	id          int
	passivated  int
	destroyed   bool
	failRecycle bool
}

type widgetFactory struct {
	next      atomic.Int64
	makeErr   error
	destroyed atomic.Int64
}

func (f *widgetFactory) MakeObject(context.Context) (*widget, error) {
	if f.makeErr != nil {
		return nil, f.makeErr
	}
	return &widget{id: int(f.next.Add(1))}, nil
}

func (f *widgetFactory) PassivateObject(_ context.Context, w *widget) error {
	if w.failRecycle {
		return errors.New("dirty widget")
	}
	w.passivated++
	return nil
}

func (f *widgetFactory) DestroyObject(_ context.Context, w *widget) error {
	w.destroyed = true
	f.destroyed.Add(1)
	return nil
}

func TestPoolReusesReleasedObjects(t *testing.T) {
	ctx := context.Background()
	p := New[*widget](&widgetFactory{}, 2)

	w1, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(ctx, w1))

	w2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, w2.passivated)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, 2, stats.Size)
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	ctx := context.Background()
	p := New[*widget](&widgetFactory{}, 1)

	w, err := p.Acquire(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, p.Release(ctx, w))
	_, err = p.Acquire(ctx)
	assert.NoError(t, err)
}

func TestPoolInvalidateDestroys(t *testing.T) {
	ctx := context.Background()
	f := &widgetFactory{}
	p := New[*widget](f, 1)

	w, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Invalidate(ctx, w))
	assert.True(t, w.destroyed)

	w2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, w, w2, "destroyed objects are never reused")
	assert.Equal(t, 2, p.Stats().Created)
	assert.Equal(t, 1, p.Stats().Destroyed)
}

func TestPoolReleaseDestroysOnPassivateFailure(t *testing.T) {
	ctx := context.Background()
	p := New[*widget](&widgetFactory{}, 1)

	w, err := p.Acquire(ctx)
	require.NoError(t, err)
	w.failRecycle = true

	err = p.Release(ctx, w)
	require.Error(t, err)
	assert.True(t, w.destroyed)
	assert.Equal(t, 0, p.Stats().Idle)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestPoolMakeFailureFreesSlot(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	f := &widgetFactory{makeErr: boom}
	p := New[*widget](f, 1)

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, boom)

	f.makeErr = nil
	_, err = p.Acquire(ctx)
	assert.NoError(t, err, "failed make must not leak the permit")
}

func TestPoolClose(t *testing.T) {
	ctx := context.Background()
	f := &widgetFactory{}
	p := New[*widget](f, 2)

	idle, err := p.Acquire(ctx)
	require.NoError(t, err)
	busy, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(ctx, idle))

	require.NoError(t, p.Close(ctx))
	assert.True(t, idle.destroyed)
	assert.False(t, busy.destroyed)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, p.Release(ctx, busy))
	assert.True(t, busy.destroyed, "released after close")
	assert.NoError(t, p.Close(ctx), "close is idempotent")
}

func TestPoolConcurrentUse(t *testing.T) {
	ctx := context.Background()
	p := New[*widget](&widgetFactory{}, 3)

	var inUse, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := p.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			n := inUse.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			assert.NoError(t, p.Release(ctx, w))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.LessOrEqual(t, p.Stats().Created, 3)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestNewClampsSize(t *testing.T) {
	p := New[*widget](&widgetFactory{}, 0)
	assert.Equal(t, 1, p.Size())
}
