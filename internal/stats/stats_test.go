package stats

import (
	"math"
	"testing"
)

func TestSPRTParamsBounds(t *testing.T) {
	params, err := NewSPRTParams(0, 5, 0.05, 0.05)
	if err != nil {
		t.Fatalf("NewSPRTParams: %v", err)
	}
	if !approxEqual(params.Lower, -2.944, 0.01) {
		t.Fatalf("Lower = %v, want ~-2.944", params.Lower)
	}
	if !approxEqual(params.Upper, 2.944, 0.01) {
		t.Fatalf("Upper = %v, want ~2.944", params.Upper)
	}
}

func TestSPRTParamsRejectsBadInputs(t *testing.T) {
	if _, err := NewSPRTParams(0, 5, 0.6, 0.05); err == nil {
		t.Fatal("expected error for alpha >= 0.5")
	}
	if _, err := NewSPRTParams(5, 0, 0.05, 0.05); err == nil {
		t.Fatal("expected error for elo1 <= elo0")
	}
}

func TestLLRAcceptH1(t *testing.T) {
	params, err := NewSPRTParams(0, 5, 0.05, 0.05)
	if err != nil {
		t.Fatalf("NewSPRTParams: %v", err)
	}
	tally := Tally{WW: 594, WD: 1937, DD: 0, WL: 2942, DL: 1923, LL: 485}
	llr := LLR(tally, params)
	if !approxEqual(llr, 2.99, 0.1) {
		t.Fatalf("LLR = %v, want ~2.99", llr)
	}
	if Evaluate(llr, params) != AcceptH1 {
		t.Fatalf("Evaluate(%v) = %v, want AcceptH1", llr, Evaluate(llr, params))
	}
}

func TestLLRNegativeWhenWeaker(t *testing.T) {
	params, err := NewSPRTParams(0, 5, 0.05, 0.05)
	if err != nil {
		t.Fatalf("NewSPRTParams: %v", err)
	}
	// A pentanomial tally skewed toward losses should pull the LLR toward
	// the lower (reject-H1) bound rather than the upper one.
	tally := Tally{WW: 511, WD: 933, DD: 0, WL: 1932, DL: 1007, LL: 527}
	llr := LLR(tally, params)
	if llr >= 0 {
		t.Fatalf("LLR = %v, want a negative value for a below-even tally", llr)
	}
	if Evaluate(llr, params) == AcceptH1 {
		t.Fatalf("Evaluate(%v) = AcceptH1, want RejectH1 or Continue for a below-even tally", llr)
	}
}

func TestAddPairClassification(t *testing.T) {
	var tally Tally
	tally.AddPair(BlackWin, WhiteWin)
	tally.AddPair(WhiteWin, BlackWin)
	tally.AddPair(Draw, Draw)
	tally.AddPair(WhiteWin, WhiteWin)
	tally.AddPair(BlackWin, Draw)
	tally.AddPair(WhiteWin, Draw)
	if tally.WW != 1 || tally.LL != 1 || tally.DD != 1 || tally.WL != 1 || tally.WD != 1 || tally.DL != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	if tally.N() != 6 {
		t.Fatalf("N() = %d, want 6", tally.N())
	}
}

func TestLogisticEloDegenerateInputs(t *testing.T) {
	if !math.IsInf(LogisticElo(0), -1) {
		t.Fatal("expected -Inf for score 0")
	}
	if !math.IsInf(LogisticElo(1), 1) {
		t.Fatal("expected +Inf for score 1")
	}
	if LogisticElo(0.5) != 0 {
		t.Fatalf("LogisticElo(0.5) = %v, want 0", LogisticElo(0.5))
	}
}

func TestFormatElo(t *testing.T) {
	if FormatElo(math.Inf(1)) != "+INF" {
		t.Fatal("expected +INF")
	}
	if FormatElo(math.Inf(-1)) != "-INF" {
		t.Fatal("expected -INF")
	}
	if FormatElo(math.NaN()) != "N/A" {
		t.Fatal("expected N/A")
	}
}

func TestWilsonEloIntervalOrdering(t *testing.T) {
	low, high := WilsonEloInterval(Trinomial{Wins: 60, Draws: 20, Losses: 20}, 1)
	if low >= high {
		t.Fatalf("expected low < high, got low=%v high=%v", low, high)
	}
}

func approxEqual(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}
