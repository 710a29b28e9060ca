package opening

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadMoveList(t *testing.T) {
	path := writeTemp(t, "book.txt", "c3 c4\na1 e1\n")
	openings, err := Load(path, FormatMoveList, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(openings) != 2 {
		t.Fatalf("expected 2 openings, got %d", len(openings))
	}
	if len(openings[0].Moves) != 2 || openings[0].Moves[0] != "c3" {
		t.Fatalf("unexpected first opening: %+v", openings[0])
	}
}

func TestLoadMoveListWithTPSPrefix(t *testing.T) {
	tps := "x5/x5/x5/x5/x5 1 1"
	path := writeTemp(t, "book.txt", tps+" ; c3 c4\n")
	openings, err := Load(path, FormatMoveList, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(openings) != 1 || openings[0].TPS != tps {
		t.Fatalf("unexpected opening: %+v", openings[0])
	}
}

func TestLoadMoveListRejectsIllegalMove(t *testing.T) {
	path := writeTemp(t, "book.txt", "c3 c3\n")
	if _, err := Load(path, FormatMoveList, 5); err == nil {
		t.Fatal("expected error for a move onto an occupied square")
	}
}

func TestLoadMoveListRejectsMalformedMove(t *testing.T) {
	path := writeTemp(t, "book.txt", "zz9\n")
	if _, err := Load(path, FormatMoveList, 5); err == nil {
		t.Fatal("expected error for a malformed move")
	}
}

func TestLoadTPSList(t *testing.T) {
	tps := "x5/x5/x5/x5/x5 1 1"
	path := writeTemp(t, "book.tps", tps+"\n")
	openings, err := Load(path, FormatTPS, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(openings) != 1 || openings[0].TPS != tps || len(openings[0].Moves) != 0 {
		t.Fatalf("unexpected opening: %+v", openings[0])
	}
}

func TestLoadPTNList(t *testing.T) {
	game := "[Event \"Test\"]\n[Size \"5\"]\n\n1. c3 c4 2. Sd3 {comment} 1c4< *\n"
	path := writeTemp(t, "book.ptn", game)
	openings, err := Load(path, FormatPTN, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(openings) != 1 {
		t.Fatalf("expected 1 opening, got %d", len(openings))
	}
	want := []string{"c3", "c4", "Sd3", "1c4<"}
	if len(openings[0].Moves) != len(want) {
		t.Fatalf("unexpected moves: %v", openings[0].Moves)
	}
	for i, m := range want {
		if openings[0].Moves[i] != m {
			t.Fatalf("move[%d] = %q, want %q", i, openings[0].Moves[i], m)
		}
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := []Opening{{Moves: []string{"a"}}, {Moves: []string{"b"}}, {Moves: []string{"c"}}, {Moves: []string{"d"}}}
	b := make([]Opening, len(a))
	copy(b, a)
	Shuffle(a, 42)
	Shuffle(b, 42)
	for i := range a {
		if a[i].Moves[0] != b[i].Moves[0] {
			t.Fatalf("shuffle with the same seed diverged at index %d", i)
		}
	}
}
