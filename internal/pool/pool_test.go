package pool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/racetrack/internal/engine"
	"github.com/freeeve/racetrack/internal/ptn"
	"github.com/freeeve/racetrack/internal/schedule"
)

// alwaysPlaceEngineSource answers "go" with a placement on the next square of
// a fixed 4x4 list, cycling through it without looking at the board. Both
// engines start from the same list, so a game ends quickly (typically when
// a placement lands on an occupied square and forfeits) without the mock
// needing to understand Tak rules at all.
const alwaysPlaceEngineSource = `package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

var squares = []string{"a1", "b1", "c1", "d1", "a2", "b2", "c2", "d2", "a3", "b3", "c3", "d3", "a4", "b4", "c4", "d4"}
var idx = 0

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "tei":
			fmt.Println("id name placer")
			fmt.Println("teiok")
		case line == "isready":
			fmt.Println("readyok")
		case strings.HasPrefix(line, "teinewgame "), strings.HasPrefix(line, "setoption "), strings.HasPrefix(line, "position "):
			// accepted
		case strings.HasPrefix(line, "go "):
			m := squares[idx%len(squares)]
			idx++
			fmt.Println("bestmove " + m)
		case line == "quit":
			os.Exit(0)
		}
	}
}
`

func buildMockEngine(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "main.go")
	if err := os.WriteFile(srcPath, []byte(source), 0644); err != nil {
		t.Fatalf("write mock engine source: %v", err)
	}
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}
	binPath := filepath.Join(dir, "mock_engine"+ext)
	cmd := exec.Command("go", "build", "-o", binPath, srcPath)
	cmd.Env = append(os.Environ(), "GOOS="+runtime.GOOS, "GOARCH="+runtime.GOARCH)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build mock engine: %v\n%s", err, out)
	}
	return binPath
}

func TestPoolRunsEntireScheduleExactlyOnce(t *testing.T) {
	bin := buildMockEngine(t, alwaysPlaceEngineSource)

	participants := []Participant{
		{Name: "alpha", Config: engine.Config{ID: "alpha", Path: bin}},
		{Name: "beta", Config: engine.Config{ID: "beta", Path: bin}},
	}
	games := []schedule.ScheduledGame{
		{RoundNumber: 0, WhiteEngineID: 0, BlackEngineID: 1, BoardSize: 4},
		{RoundNumber: 1, WhiteEngineID: 1, BlackEngineID: 0, BoardSize: 4},
		{RoundNumber: 2, WhiteEngineID: 0, BlackEngineID: 1, BoardSize: 4},
		{RoundNumber: 3, WhiteEngineID: 1, BlackEngineID: 0, BoardSize: 4},
	}

	var out strings.Builder
	writer := ptn.NewWriter(&out)

	var mu sync.Mutex
	seenRounds := make(map[int]bool)

	p := &Pool{
		Participants: participants,
		Games:        games,
		BaseTime:     10 * time.Second,
		Writer:       writer,
		OnResult: func(g schedule.ScheduledGame, rec ptn.GameRecord) {
			mu.Lock()
			seenRounds[g.RoundNumber] = true
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Run(ctx, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seenRounds) != len(games) {
		t.Fatalf("seenRounds = %v, want all %d rounds reported", seenRounds, len(games))
	}
	for _, g := range games {
		if !seenRounds[g.RoundNumber] {
			t.Fatalf("round %d never reported", g.RoundNumber)
		}
	}

	finished := p.SnapshotFinished()
	if len(finished) != len(games) {
		t.Fatalf("SnapshotFinished() len = %d, want %d", len(finished), len(games))
	}
	for i, rec := range finished {
		if rec == nil {
			t.Fatalf("finished[%d] is nil", i)
		}
		if rec.Result == "" {
			t.Fatalf("finished[%d].Result is empty", i)
		}
	}
}

func TestPoolRequestShutdownStopsPickingUpNewGames(t *testing.T) {
	bin := buildMockEngine(t, alwaysPlaceEngineSource)

	participants := []Participant{
		{Name: "alpha", Config: engine.Config{ID: "alpha", Path: bin}},
		{Name: "beta", Config: engine.Config{ID: "beta", Path: bin}},
	}
	// A large schedule: request shutdown immediately from OnResult after the
	// first game, which should keep the single worker from ever reaching the
	// end of a much longer schedule.
	games := make([]schedule.ScheduledGame, 50)
	for i := range games {
		white, black := 0, 1
		if i%2 == 1 {
			white, black = 1, 0
		}
		games[i] = schedule.ScheduledGame{RoundNumber: i, WhiteEngineID: white, BlackEngineID: black, BoardSize: 4}
	}

	var out strings.Builder
	writer := ptn.NewWriter(&out)

	var completed int
	var mu sync.Mutex

	p := &Pool{
		Participants: participants,
		Games:        games,
		BaseTime:     10 * time.Second,
		Writer:       writer,
	}
	p.OnResult = func(g schedule.ScheduledGame, rec ptn.GameRecord) {
		mu.Lock()
		completed++
		mu.Unlock()
		p.RequestShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Run(ctx, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if completed == 0 {
		t.Fatal("expected at least one game to complete before shutdown")
	}
	if completed >= len(games) {
		t.Fatalf("completed = %d, want fewer than the full schedule of %d after an immediate shutdown request", completed, len(games))
	}
}
