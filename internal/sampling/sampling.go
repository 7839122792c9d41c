// Package sampling draws the frozen question list of a new attempt.
package sampling

import (
	"math/rand/v2"
	"sync"
)

// Sampler picks k distinct elements uniformly at random.
// A seeded Sampler yields the same sequence of draws for the same seed.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an unseeded Sampler when seed is 0 and a deterministic one otherwise.
func New(seed uint64) *Sampler {
	if seed == 0 {
		return &Sampler{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Indices returns min(k, n) distinct indices in [0, n) in draw order,
// using a partial Fisher-Yates shuffle.
func (s *Sampler) Indices(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	s.mu.Lock()
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	s.mu.Unlock()

	return idx[:k]
}

// Draw returns min(k, len(pool)) distinct elements of pool in draw order.
// pool is not modified.
func Draw[T any](s *Sampler, pool []T, k int) []T {
	picked := s.Indices(len(pool), k)
	out := make([]T, len(picked))
	for i, p := range picked {
		out[i] = pool[p]
	}
	return out
}
