// Package netem implements the packet manipulation pipeline: the
// probability gate and effect window primitives, the per-module state
// machines (drop, lag, throttle, duplicate, tamper, bandwidth, reorder,
// burst) and the registry that dispatches a packet batch through every
// enabled module in a fixed order.
package netem

import "math/rand/v2"

// Gate is the pipeline's probability gate. One PCG source is shared by
// every module; it is owned by the dispatch worker and must not be used
// concurrently.
type Gate struct {
	rng *rand.Rand
}

// NewGate returns a gate seeded for reproducible draws.
// seed == 0 picks a random seed.
func NewGate(seed uint64) *Gate {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Gate{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Roll performs one Bernoulli trial with probability p.
// p <= 0 never selects, p >= 1 always selects.
func (g *Gate) Roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.rng.Float64() < p
}

// Float64 returns a uniform draw in [0, 1).
func (g *Gate) Float64() float64 { return g.rng.Float64() }

// IntN returns a uniform draw in [0, n).
func (g *Gate) IntN(n int) int { return g.rng.IntN(n) }
