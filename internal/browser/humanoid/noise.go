// File: internal/browser/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
)

// PinkNoiseGenerator produces 1/f noise with the stochastic Voss-McCartney method: a bank
// of white sources where source i is redrawn with probability proportional to 2^-i, so low
// sources change often and high ones rarely. The sum drifts slowly with fast jitter on top.
type PinkNoiseGenerator struct {
	rng     *rand.Rand
	sources []float64
	cdf     []float64
	sum     float64
	norm    float64
}

// NewPinkNoiseGenerator builds a generator over n sources; n <= 0 selects 12.
func NewPinkNoiseGenerator(rng *rand.Rand, n int) *PinkNoiseGenerator {
	if n <= 0 {
		n = 12
	}
	g := &PinkNoiseGenerator{
		rng:     rng,
		sources: make([]float64, n),
		cdf:     make([]float64, n),
		norm:    1 / math.Sqrt(float64(n)),
	}
	total := 2 * (1 - math.Pow(2, -float64(n)))
	acc := 0.0
	for i := range g.sources {
		acc += math.Pow(2, -float64(i)) / total
		g.cdf[i] = acc
		g.sources[i] = g.white()
		g.sum += g.sources[i]
	}
	return g
}

func (g *PinkNoiseGenerator) white() float64 { return g.rng.Float64()*2 - 1 }

// Next returns the next sample, roughly within [-sqrt(n), sqrt(n)] scaled to unit spread.
func (g *PinkNoiseGenerator) Next() float64 {
	r := g.rng.Float64()
	idx := len(g.cdf) - 1
	for i, c := range g.cdf {
		if r < c {
			idx = i
			break
		}
	}
	fresh := g.white()
	g.sum += fresh - g.sources[idx]
	g.sources[idx] = fresh
	return g.sum * g.norm
}
