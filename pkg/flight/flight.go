package flight

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent computations by key. The first caller for a
// key becomes the leader and runs the computation; callers that arrive while
// it is in flight wait for the leader's result instead of computing again.
// Distinct keys are fully independent.
type Group[V any] struct {
	sf singleflight.Group
}

// Do executes fn under the given key, returning the shared result and
// whether it was shared with other callers.
//
// The computation runs on a context detached from the caller's cancellation:
// once started, a leader runs to completion even if its own caller gives up,
// because waiting followers and future callers still benefit from the
// result. A caller whose ctx expires stops waiting and receives ctx.Err();
// the in-flight computation is unaffected. A panic inside fn is returned as
// an error to every waiter and the key is released.
func (g *Group[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		return runProtected(detached, fn)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Shared, res.Err
	}
}

// runProtected converts a panic in fn into an error. Raw panics inside a
// DoChan computation would escape on a runtime goroutine and crash the
// process instead of reaching the waiters.
func runProtected[V any](ctx context.Context, fn func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flight: computation panicked: %v", r)
		}
	}()
	return fn(ctx)
}
