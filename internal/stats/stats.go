// Package stats implements the pentanomial tally, GSPRT stopping rule, and
// Wilson-score confidence-interval reporting spec'd for two-engine
// tournaments.
package stats

import (
	"fmt"
	"math"
)

// GameResult is the outcome of a single game from White's perspective.
type GameResult int

const (
	Draw GameResult = iota
	WhiteWin
	BlackWin
)

// Tally counts completed game pairs (two games, same opening, colors
// swapped) by pentanomial category. Invariant: WW+WD+DD+WL+DL+LL equals the
// number of completed pairs.
type Tally struct {
	WW, WD, DD, WL, DL, LL int
}

// AddPair classifies one completed pair (first game's result, second game's
// result, both as played) into a pentanomial bucket and increments it. The
// buckets are counted from the side of the engine that played Black in the
// first game and White in the second: a White win followed by a Black win
// is LL.
func (t *Tally) AddPair(r1, r2 GameResult) {
	switch {
	case r1 == WhiteWin && r2 == BlackWin:
		t.LL++
	case (r1 == WhiteWin && r2 == Draw) || (r1 == Draw && r2 == BlackWin):
		t.DL++
	case (r1 == WhiteWin && r2 == WhiteWin) || (r1 == BlackWin && r2 == BlackWin):
		t.WL++
	case r1 == Draw && r2 == Draw:
		t.DD++
	case (r1 == BlackWin && r2 == Draw) || (r1 == Draw && r2 == WhiteWin):
		t.WD++
	case r1 == BlackWin && r2 == WhiteWin:
		t.WW++
	}
}

// N is the number of completed pairs.
func (t Tally) N() int {
	return t.WW + t.WD + t.DD + t.WL + t.DL + t.LL
}

// pentanomialScores are the scores assigned to the five regularized
// buckets (LL, DL, DD+WL, WD, WW) in that order.
var pentanomialScores = [5]float64{0, 0.25, 0.5, 0.75, 1.0}

// buckets collapses the six raw counts into the five score buckets the
// regularized pdf is computed over.
func (t Tally) buckets() [5]float64 {
	return [5]float64{
		float64(t.LL),
		float64(t.DL),
		float64(t.DD + t.WL),
		float64(t.WD),
		float64(t.WW),
	}
}

// regularize adds 0.001/zero_count to every zero bucket (and so 0.001 to the
// total), matching the original's zero-count regularization, then returns
// the normalized probability distribution.
func regularize(counts [5]float64) [5]float64 {
	zeroCount := 0
	for _, c := range counts {
		if c == 0 {
			zeroCount++
		}
	}
	if zeroCount > 0 {
		reg := 0.001 / float64(zeroCount)
		for i, c := range counts {
			if c == 0 {
				counts[i] = reg
			}
		}
	}
	var total float64
	for _, c := range counts {
		total += c
	}
	var pdf [5]float64
	for i, c := range counts {
		pdf[i] = c / total
	}
	return pdf
}

// ScoreAndVariance computes the regularized-pdf mean and variance of the
// pentanomial score distribution.
func (t Tally) ScoreAndVariance() (mean, variance float64) {
	pdf := regularize(t.buckets())
	for i, p := range pdf {
		mean += p * pentanomialScores[i]
	}
	for i, p := range pdf {
		d := pentanomialScores[i] - mean
		variance += p * d * d
	}
	return mean, variance
}

// SPRTParams holds the precomputed bounds for the GSPRT stopping rule.
type SPRTParams struct {
	Elo0, Elo1   float64
	Alpha, Beta  float64
	T0, T1       float64
	Lower, Upper float64
}

// NewSPRTParams validates alpha/beta/elo ordering and precomputes the
// log-likelihood bounds per spec.md §4.6.
func NewSPRTParams(elo0, elo1, alpha, beta float64) (SPRTParams, error) {
	if !(alpha > 0 && alpha < 0.5) || !(beta > 0 && beta < 0.5) {
		return SPRTParams{}, fmt.Errorf("stats: alpha and beta must satisfy 0 < x < 0.5")
	}
	if elo1 <= elo0 {
		return SPRTParams{}, fmt.Errorf("stats: elo1 must be greater than elo0")
	}
	const c = 800 / math.Ln10
	return SPRTParams{
		Elo0:  elo0,
		Elo1:  elo1,
		Alpha: alpha,
		Beta:  beta,
		T0:    elo0 / c,
		T1:    elo1 / c,
		Lower: math.Log(beta / (1 - alpha)),
		Upper: math.Log((1 - beta) / alpha),
	}, nil
}

// Decision is the outcome of comparing an LLR against the SPRT bounds.
type Decision int

const (
	Continue Decision = iota
	AcceptH1
	RejectH1
)

// LLR computes the GSPRT log-likelihood ratio for the tally under params.
func LLR(t Tally, params SPRTParams) float64 {
	n := float64(t.N())
	if n == 0 {
		return 0
	}
	mean, variance := t.ScoreAndVariance()
	sigma := math.Sqrt(2 * variance)
	tStat := (mean - 0.5) / sigma
	num := 1 + sq(tStat-params.T0)
	den := 1 + sq(tStat-params.T1)
	return n * math.Log(num/den)
}

func sq(x float64) float64 { return x * x }

// Evaluate returns the SPRT decision for a given LLR against params.
func Evaluate(llr float64, params SPRTParams) Decision {
	switch {
	case llr <= params.Lower:
		return RejectH1
	case llr >= params.Upper:
		return AcceptH1
	default:
		return Continue
	}
}

// LogisticElo converts a score in [0,1] to an Elo difference via the
// logistic model, clamping the score away from the degenerate 0/1 endpoints
// (which are reported as ±Inf) before applying the formula.
func LogisticElo(score float64) float64 {
	if score <= 0 {
		return math.Inf(-1)
	}
	if score >= 1 {
		return math.Inf(1)
	}
	clamped := math.Min(math.Max(score, 1e-6), 1-1e-6)
	return -400 * math.Log10(1/clamped-1)
}

// NormalizedElo converts a mean/variance pair to an Elo difference using the
// normal approximation, as used for the pentanomial mean directly (rather
// than through the logistic score transform).
func NormalizedElo(mean, variance float64) float64 {
	if variance <= 0 {
		return math.Inf(0) * math.Copysign(1, mean-0.5)
	}
	const c = 800 / math.Ln10
	return (mean - 0.5) / math.Sqrt(2*variance) * c
}

// FormatElo renders an Elo value the way the original CLI reports
// degenerate bounds: "+INF" / "-INF" for infinities, "N/A" for NaN.
func FormatElo(elo float64) string {
	switch {
	case math.IsInf(elo, 1):
		return "+INF"
	case math.IsInf(elo, -1):
		return "-INF"
	case math.IsNaN(elo):
		return "N/A"
	default:
		return fmt.Sprintf("%.1f", elo)
	}
}
