package core

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// shared runs fill once per key across concurrent callers. fill runs without
// the caller's cancellation; each caller stops waiting when its own ctx is done.
func shared[T any](ctx context.Context, g *singleflight.Group, key string, fill func(context.Context) (T, error)) (T, error) {
	ch := g.DoChan(key, func() (any, error) {
		return fill(context.WithoutCancel(ctx))
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
