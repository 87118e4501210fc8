package rpc

import (
	"context"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"golang.org/x/sync/errgroup"
)

const maxParallelPings = 8

// Benchmark pings every URL in parallel and reports the results in input order.
// Failed pings produce unhealthy endpoints rather than an error.
func Benchmark(ctx context.Context, urls []string) []Endpoint {
	out := make([]Endpoint, len(urls))
	var g errgroup.Group
	g.SetLimit(maxParallelPings)

	for i, u := range urls {
		g.Go(func() error {
			latency, block, err := chain.NewEVMClient(u).Ping(ctx)
			out[i] = Endpoint{
				URL:         u,
				Latency:     latency,
				BlockNumber: block,
				Healthy:     err == nil,
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Select picks the best URL using algo. A single URL is returned without
// being pinged.
func Select(ctx context.Context, urls []string, algo Algorithm) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	winner, err := NewPicker(algo).Pick(Benchmark(ctx, urls))
	if err != nil {
		return "", err
	}
	return winner.URL, nil
}
