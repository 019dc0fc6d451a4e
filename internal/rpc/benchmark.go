package rpc

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Benchmark probes every endpoint of the pool in parallel. Results keep the
// pool's rotation order. Endpoints lagging the best block by more than
// staleBlockThreshold are marked unhealthy. The pool's rotation is untouched.
func Benchmark(ctx context.Context, p *Pool) []ProbeResult {
	endpoints := p.Endpoints()
	results := make([]ProbeResult, len(endpoints))
	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = Probe(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	var best uint64
	for _, r := range results {
		if r.Healthy && r.BlockNumber > best {
			best = r.BlockNumber
		}
	}
	for i := range results {
		if results[i].Healthy && best-results[i].BlockNumber > staleBlockThreshold {
			results[i].Healthy = false
		}
	}
	return results
}

// Fastest returns the healthy results ordered by latency.
func Fastest(results []ProbeResult) []ProbeResult {
	var healthy []ProbeResult
	for _, r := range results {
		if r.Healthy {
			healthy = append(healthy, r)
		}
	}
	slices.SortFunc(healthy, func(a, b ProbeResult) int {
		return cmp.Compare(a.Latency, b.Latency)
	})
	return healthy
}
