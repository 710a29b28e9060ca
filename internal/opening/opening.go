// Package opening loads tournament opening books in the three formats the
// CLI accepts (move-list, tps, ptn) and validates every forced move by
// replaying it against internal/position before the tournament starts.
package opening

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"

	"github.com/freeeve/racetrack/internal/position"
)

// Format names one of the three book file layouts.
type Format string

const (
	FormatMoveList Format = "move-list"
	FormatTPS      Format = "tps"
	FormatPTN      Format = "ptn"
)

// Opening is a single book entry: an optional non-standard root position
// (empty TPS means the ordinary start position) plus a forced move prefix.
type Opening struct {
	TPS   string
	Moves []string
}

// Load reads path in the given format and validates every opening against a
// board of the given size, returning a StartupError-class error on any
// illegal or malformed entry — mirroring the original openings_from_file's
// exit_with_error behavior.
func Load(path string, format Format, size int) ([]Opening, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening: read %s: %w", path, err)
	}

	var openings []Opening
	switch format {
	case FormatMoveList:
		openings, err = parseMoveList(string(data))
	case FormatTPS:
		openings, err = parseTPSList(string(data))
	case FormatPTN:
		openings, err = parsePTNList(string(data))
	default:
		return nil, fmt.Errorf("opening: unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}

	for i, o := range openings {
		if err := validate(o, size); err != nil {
			return nil, fmt.Errorf("opening: entry %d in %s: %w", i, path, err)
		}
	}
	return openings, nil
}

func parseMoveList(data string) ([]Opening, error) {
	var openings []Opening
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var o Opening
		if idx := strings.Index(line, ";"); idx >= 0 {
			o.TPS = strings.TrimSpace(line[:idx])
			o.Moves = strings.Fields(line[idx+1:])
		} else {
			o.Moves = strings.Fields(line)
		}
		openings = append(openings, o)
	}
	return openings, scanner.Err()
}

func parseTPSList(data string) ([]Opening, error) {
	var openings []Opening
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		openings = append(openings, Opening{TPS: line})
	}
	return openings, scanner.Err()
}

var ptnTagLine = regexp.MustCompile(`^\[.*\]$`)
var ptnMoveNumber = regexp.MustCompile(`^\d+\.$`)
var ptnComment = regexp.MustCompile(`\{[^}]*\}`)

func parsePTNList(data string) ([]Opening, error) {
	var openings []Opening
	for _, block := range strings.Split(data, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var movetext []string
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || ptnTagLine.MatchString(line) {
				continue
			}
			movetext = append(movetext, line)
		}
		joined := ptnComment.ReplaceAllString(strings.Join(movetext, " "), "")
		var moves []string
		for _, tok := range strings.Fields(joined) {
			if ptnMoveNumber.MatchString(tok) || tok == "1-0" || tok == "0-1" || tok == "1/2-1/2" || tok == "*" {
				continue
			}
			moves = append(moves, tok)
		}
		if len(moves) > 0 {
			openings = append(openings, Opening{Moves: moves})
		}
	}
	return openings, nil
}

func validate(o Opening, size int) error {
	var b *position.Board
	var err error
	if o.TPS != "" {
		b, err = position.FromTPS(o.TPS, size, 0)
	} else {
		b, err = position.Start(size, 0)
	}
	if err != nil {
		return err
	}
	for _, lan := range o.Moves {
		m, err := b.ParseLAN(lan)
		if err != nil {
			return fmt.Errorf("malformed move %q: %w", lan, err)
		}
		if err := b.Apply(m); err != nil {
			return fmt.Errorf("illegal move %q: %w", lan, err)
		}
	}
	return nil
}

// Shuffle performs a Fisher-Yates shuffle of openings in place, seeded from
// seed (a non-zero Config.Seed) for reproducible tournaments.
func Shuffle(openings []Opening, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := len(openings) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		openings[i], openings[j] = openings[j], openings[i]
	}
}
