// Package ptn implements the GameRecord type and an order-enforcing writer
// that emits completed games to a PTN file strictly in increasing round
// order, regardless of the order in which workers finish them.
package ptn

import (
	"container/heap"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MoveRecord is one ply: the long-algebraic move plus the comment derived
// from the engine's last reported info line.
type MoveRecord struct {
	LAN     string
	Comment string
}

// GameRecord is everything the driver collects about one finished (or
// aborted) game.
type GameRecord struct {
	Round    int
	StartTPS string // empty means the standard start position
	Moves    []MoveRecord
	Result   string // "1-0", "0-1", "1/2-1/2", or "*"
	Tags     []Tag
}

// Tag is one bracketed PTN header tag.
type Tag struct {
	Key   string
	Value string
}

// requiredTagOrder lists the tags written first, in this order, with the
// requiredTagDefaults value (empty for Player1/Player2) when the caller's
// Tags slice doesn't supply them — mirroring the
// original's game_to_pgn fixed tag order.
var requiredTagOrder = []string{"Event", "Site", "Date", "Round", "Player1", "Player2"}

var requiredTagDefaults = map[string]string{
	"Event": "racetrack tournament",
	"Site":  "?",
	"Date":  "????.??.??",
	"Round": "1",
}

// ToText renders the game as PTN text: bracketed tags, then movetext with
// inline {comment} tokens wrapped at 12 moves per line, then the result.
func (g GameRecord) ToText() string {
	tagValues := make(map[string]string, len(g.Tags))
	for _, t := range g.Tags {
		tagValues[t.Key] = t.Value
	}

	var sb strings.Builder
	seen := make(map[string]bool, len(requiredTagOrder))
	for _, key := range requiredTagOrder {
		val, ok := tagValues[key]
		if !ok {
			val = requiredTagDefaults[key]
		}
		fmt.Fprintf(&sb, "[%s \"%s\"]\n", key, val)
		seen[key] = true
	}
	if g.Result != "" && g.Result != "*" {
		fmt.Fprintf(&sb, "[Result \"%s\"]\n", g.Result)
		seen["Result"] = true
	}
	if g.StartTPS != "" {
		fmt.Fprintf(&sb, "[TPS \"%s\"]\n", g.StartTPS)
		seen["TPS"] = true
	}
	for _, t := range g.Tags {
		if seen[t.Key] {
			continue
		}
		fmt.Fprintf(&sb, "[%s \"%s\"]\n", t.Key, t.Value)
		seen[t.Key] = true
	}
	sb.WriteByte('\n')

	const movesPerLine = 12
	moveNum := 1
	onLine := 0
	for i := 0; i < len(g.Moves); i += 2 {
		if onLine >= movesPerLine {
			sb.WriteByte('\n')
			onLine = 0
		}
		fmt.Fprintf(&sb, "%d. %s", moveNum, movetext(g.Moves[i]))
		if i+1 < len(g.Moves) {
			fmt.Fprintf(&sb, " %s", movetext(g.Moves[i+1]))
		}
		sb.WriteByte(' ')
		onLine++
		moveNum++
	}
	result := g.Result
	if result == "" {
		result = "*"
	}
	sb.WriteString(result)
	sb.WriteByte('\n')
	return sb.String()
}

func movetext(m MoveRecord) string {
	if m.Comment == "" {
		return m.LAN
	}
	return fmt.Sprintf("%s {%s}", m.LAN, m.Comment)
}

// gameHeap is a min-heap of pending GameRecords ordered by round number.
type gameHeap []GameRecord

func (h gameHeap) Len() int            { return len(h) }
func (h gameHeap) Less(i, j int) bool  { return h[i].Round < h[j].Round }
func (h gameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *gameHeap) Push(x interface{}) { *h = append(*h, x.(GameRecord)) }
func (h *gameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Writer holds submitted GameRecords in a min-heap keyed by round number and
// flushes the contiguous prefix starting from the next expected round, so
// games always reach the output file in round order even though workers
// finish them out of order.
type Writer struct {
	mu       sync.Mutex
	out      io.Writer
	pending  gameHeap
	nextWant int
}

// NewWriter wraps out (typically an append-mode file) as an order-enforcing
// PTN writer.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Submit records g as finished and flushes every contiguous round starting
// from the writer's next-expected round.
func (w *Writer) Submit(g GameRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	heap.Push(&w.pending, g)
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	for len(w.pending) > 0 && w.pending[0].Round == w.nextWant {
		g := heap.Pop(&w.pending).(GameRecord)
		if _, err := io.WriteString(w.out, g.ToText()); err != nil {
			return fmt.Errorf("ptn: write round %d: %w", g.Round, err)
		}
		if _, err := io.WriteString(w.out, "\n"); err != nil {
			return fmt.Errorf("ptn: write round %d: %w", g.Round, err)
		}
		w.nextWant++
	}
	return nil
}

// PendingCount reports how many submitted games are held back waiting on an
// earlier round to arrive.
func (w *Writer) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
