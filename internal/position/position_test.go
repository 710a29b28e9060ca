package position

import "testing"

func TestStartReserves(t *testing.T) {
	b, err := Start(5, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if b.reserves[White].stones != 21 || b.reserves[White].caps != 1 {
		t.Fatalf("unexpected white reserves: %+v", b.reserves[White])
	}
	if b.SideToMove() != White {
		t.Fatalf("expected White to move first")
	}
}

func TestStartUnsupportedSize(t *testing.T) {
	if _, err := Start(3, 0); err == nil {
		t.Fatal("expected error for unsupported board size 3")
	}
}

func TestApplyPlacementAndTPSRoundTrip(t *testing.T) {
	b, err := Start(5, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m, err := b.ParseLAN("c3")
	if err != nil {
		t.Fatalf("ParseLAN: %v", err)
	}
	if err := b.Apply(m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if b.SideToMove() != Black {
		t.Fatalf("expected Black to move after ply 1")
	}
	tps := b.ToTPS()
	b2, err := FromTPS(tps, 5, 0)
	if err != nil {
		t.Fatalf("FromTPS(%q): %v", tps, err)
	}
	if b2.ToTPS() != tps {
		t.Fatalf("TPS round trip mismatch: got %q want %q", b2.ToTPS(), tps)
	}
	if b2.SideToMove() != Black {
		t.Fatalf("round-tripped side to move mismatch")
	}
}

func TestApplyPlacementOccupiedSquare(t *testing.T) {
	b, _ := Start(5, 0)
	m, _ := b.ParseLAN("c3")
	if err := b.Apply(m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	m2, _ := b.ParseLAN("Sc3")
	if err := b.Apply(m2); err == nil {
		t.Fatal("expected error placing onto an occupied square")
	}
}

func TestSpreadLANRoundTrip(t *testing.T) {
	b, _ := Start(5, 0)
	cases := []string{"c3", "Sc4", "Cc5"}
	for _, lan := range cases {
		m, err := b.ParseLAN(lan)
		if err != nil {
			t.Fatalf("ParseLAN(%q): %v", lan, err)
		}
		if got := b.EncodeLAN(m); got != lan {
			t.Fatalf("EncodeLAN(ParseLAN(%q)) = %q", lan, got)
		}
	}

	spreadMove := Move{IsSpread: true, Square: 12, Direction: East, Count: 3, Drops: []int{1, 1, 1}}
	want := "3c3>111"
	if got := b.EncodeLAN(spreadMove); got != want {
		t.Fatalf("EncodeLAN spread = %q, want %q", got, want)
	}
	parsed, err := b.ParseLAN(want)
	if err != nil {
		t.Fatalf("ParseLAN(%q): %v", want, err)
	}
	if parsed.Count != 3 || len(parsed.Drops) != 3 {
		t.Fatalf("unexpected parsed spread: %+v", parsed)
	}
}

func TestApplySpreadMovesStack(t *testing.T) {
	b, _ := Start(5, 0)
	// c3 for White, c4 for Black, then White picks the c3 flat up and
	// spreads it one square east onto the empty d3.
	for _, lan := range []string{"c3", "c4"} {
		m, err := b.ParseLAN(lan)
		if err != nil {
			t.Fatalf("ParseLAN(%q): %v", lan, err)
		}
		if err := b.Apply(m); err != nil {
			t.Fatalf("Apply(%q): %v", lan, err)
		}
	}
	spread, err := b.ParseLAN("1c3>")
	if err != nil {
		t.Fatalf("ParseLAN spread: %v", err)
	}
	if err := b.Apply(spread); err != nil {
		t.Fatalf("Apply spread: %v", err)
	}
	c3 := parseIndex(t, b, "c3")
	d3 := parseIndex(t, b, "d3")
	if len(b.stacks[c3]) != 0 {
		t.Fatalf("expected c3 empty after spread, got %+v", b.stacks[c3])
	}
	if len(b.stacks[d3]) != 1 || b.stacks[d3][0].Color != White {
		t.Fatalf("expected White flat on d3, got %+v", b.stacks[d3])
	}
}

func parseIndex(t *testing.T, b *Board, square string) int {
	t.Helper()
	idx, err := parseSquareName(square, b.size)
	if err != nil {
		t.Fatalf("parseSquareName(%q): %v", square, err)
	}
	return idx
}

func TestRoadWinDetection(t *testing.T) {
	b, _ := Start(5, 0)
	// Build a White road straight across row 0 (a1-e1) by hand, bypassing
	// turn alternation so the scenario is exercised directly.
	for col := 0; col < 5; col++ {
		b.stacks[col] = []Piece{{Color: White, Type: Flat}}
	}
	b.toMove = Black
	if got := b.Result(); got != WhiteWin {
		t.Fatalf("Result() = %v, want WhiteWin", got)
	}
}

func TestFlatCountResultOnFullBoard(t *testing.T) {
	b, _ := Start(4, 0)
	// Checkerboard, so neither side has a road.
	for i := range b.stacks {
		color := White
		if (i/b.size+i%b.size)%2 == 1 {
			color = Black
		}
		b.stacks[i] = []Piece{{Color: color, Type: Flat}}
	}
	// 8 White flats vs 8 Black flats: even, should draw.
	b.toMove = White
	if got := b.Result(); got != Draw {
		t.Fatalf("Result() = %v, want Draw", got)
	}
}

func TestFlatCountWithKomi(t *testing.T) {
	b, _ := Start(4, 0)
	b.halfKomi = 4 // 2 full points to Black
	for i := range b.stacks {
		color := White
		if (i/b.size+i%b.size)%2 == 1 {
			color = Black
		}
		b.stacks[i] = []Piece{{Color: color, Type: Flat}}
	}
	if got := b.Result(); got != BlackWin {
		t.Fatalf("Result() = %v, want BlackWin with komi", got)
	}
}

func TestGenerateLegalNonEmpty(t *testing.T) {
	b, _ := Start(5, 0)
	moves := b.GenerateLegal()
	if len(moves) == 0 {
		t.Fatal("expected legal moves on an empty board")
	}
	for _, m := range moves {
		if m.IsSpread {
			t.Fatalf("unexpected spread move on an empty board: %+v", m)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b, _ := Start(5, 0)
	m, _ := b.ParseLAN("c3")
	if err := b.Apply(m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	clone := b.Clone()
	m2, _ := b.ParseLAN("c4")
	if err := b.Apply(m2); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if clone.ToTPS() == b.ToTPS() {
		t.Fatal("clone should not observe mutations to the original")
	}
}
