package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll ingests every path with at most workers concurrent loads. One
// load's failure never cancels the others; results come back in input
// order, each carrying its own error if any.
func RunAll(ctx context.Context, c *Coordinator, paths []string, workers int) []*Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]*Result, len(paths))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			results[i] = c.Load(ctx, path)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}
