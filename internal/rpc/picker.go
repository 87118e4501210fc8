// Package rpc benchmarks a chain's RPC endpoints and picks one to use.
package rpc

import (
	"errors"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no healthy RPC endpoint is available.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Nodes further than this behind the best block are ignored.
	staleBlockThreshold = 3
	cacheTTL            = 5 * time.Minute
)

// ParseAlgorithm maps a config string to an Algorithm, defaulting to fastest.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case AlgorithmRoundRobin, AlgorithmFailover:
		return Algorithm(s)
	default:
		return AlgorithmFastest
	}
}

// Endpoint is one RPC URL with its measured attributes.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool
}

// Picker selects an endpoint according to its algorithm. It is safe for
// concurrent use; the fastest winner is cached for cacheTTL.
type Picker struct {
	algo Algorithm
	now  func() time.Time

	mu          sync.Mutex
	next        int
	cachedURL   string
	cacheExpiry time.Time
}

// NewPicker creates a Picker with the given algorithm.
func NewPicker(algo Algorithm) *Picker {
	return &Picker{algo: algo, now: time.Now}
}

// Pick selects an endpoint from the provided list.
func (p *Picker) Pick(endpoints []Endpoint) (Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.Healthy {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		return Endpoint{}, ErrNoHealthyRPC
	}

	switch p.algo {
	case AlgorithmFailover:
		return healthy[0], nil
	case AlgorithmRoundRobin:
		e := healthy[p.next%len(healthy)]
		p.next = (p.next + 1) % len(healthy)
		return e, nil
	}

	if p.cachedURL != "" && p.now().Before(p.cacheExpiry) {
		for _, e := range healthy {
			if e.URL == p.cachedURL {
				return e, nil
			}
		}
	}

	var best uint64
	for _, e := range healthy {
		if e.BlockNumber > best {
			best = e.BlockNumber
		}
	}

	var (
		winner    Endpoint
		found     bool
		bestScore float64
	)
	for _, e := range healthy {
		if best-e.BlockNumber > staleBlockThreshold {
			continue
		}
		if s := score(e, best); !found || s > bestScore {
			winner, bestScore, found = e, s, true
		}
	}
	if !found {
		return Endpoint{}, ErrNoHealthyRPC
	}

	p.cachedURL = winner.URL
	p.cacheExpiry = p.now().Add(cacheTTL)
	return winner, nil
}

// score favors low latency and penalizes each block of lag.
func score(e Endpoint, best uint64) float64 {
	var s float64
	if ms := e.Latency.Milliseconds(); ms > 0 {
		s += 1000.0 / float64(ms)
	} else {
		s += 1000.0
	}
	return s - float64(best-e.BlockNumber)
}
