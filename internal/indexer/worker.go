package indexer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner is a queue consumer loop.
type Runner interface {
	Run(ctx context.Context) error
}

// RunPool runs n concurrent consumers of the same queue and blocks until all
// exit. The first failure cancels the rest.
func RunPool(ctx context.Context, r Runner, n int) error {
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error { return r.Run(ctx) })
	}
	return g.Wait()
}
