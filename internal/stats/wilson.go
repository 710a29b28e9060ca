package stats

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// numSimulations is the Monte-Carlo draw count for the Wilson confidence
// interval, matching the original's fixed 10^5 simulation budget.
const numSimulations = 100000

// Trinomial counts raw game outcomes (as opposed to Tally's paired
// pentanomial buckets), used for the two-engine Wilson-score report.
type Trinomial struct {
	Wins, Draws, Losses int
}

// N is the total number of games.
func (t Trinomial) N() int { return t.Wins + t.Draws + t.Losses }

// Score is the fractional score, counting a draw as half a win.
func (t Trinomial) Score() float64 {
	n := t.N()
	if n == 0 {
		return 0.5
	}
	return (float64(t.Wins) + 0.5*float64(t.Draws)) / float64(n)
}

// WilsonEloInterval runs a seeded Monte-Carlo simulation of the true score's
// Wilson-score confidence distribution and returns the Elo equivalents of
// its 2.5th and 97.5th percentiles. The seed makes results reproducible
// across runs, as spec.md's Wilson-CI requirement calls for.
func WilsonEloInterval(t Trinomial, seed int64) (lowElo, highElo float64) {
	n := float64(t.N())
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	successes := float64(t.Wins) + 0.5*float64(t.Draws)

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.New(rand.NewSource(seed))}
	samples := make([]float64, numSimulations)
	for i := 0; i < numSimulations; i++ {
		z := normal.Rand()
		p := wilsonBoundCC(successes, n, z)
		samples[i] = LogisticElo(p)
	}
	sort.Float64s(samples)
	lowIdx := int(0.025 * float64(numSimulations))
	highIdx := int(0.975 * float64(numSimulations))
	return samples[lowIdx], samples[highIdx]
}

// wilsonBoundCC evaluates the continuity-corrected Wilson score bound for a
// proportion of `successes` out of `n` trials at deviate z. A fixed
// z = ±1.959963984540054 reproduces the standard 95% bound; sampling z from
// a standard normal instead produces a draw from the Wilson-score sampling
// distribution used by the Monte-Carlo simulation above.
func wilsonBoundCC(successes, n, z float64) float64 {
	if n <= 0 {
		return math.NaN()
	}
	p := successes / n
	denom := 1 + z*z/n
	centre := p + z*z/(2*n)
	variance := p*(1-p)/n + z*z/(4*n*n)
	if variance < 0 {
		variance = 0
	}
	adj := z * math.Sqrt(variance)
	if z >= 0 {
		adj += 1 / (2 * n)
	} else {
		adj -= 1 / (2 * n)
	}
	bound := (centre + adj) / denom
	switch {
	case bound < 0:
		return 0
	case bound > 1:
		return 1
	default:
		return bound
	}
}

// NormPPF0975 is the standard normal's 97.5th percentile, the z value of a
// fixed (non-simulated) two-sided 95% Wilson bound. Nothing in this module
// references it.
const NormPPF0975 = 1.959963984540054
