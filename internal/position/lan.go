package position

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLAN decodes a long-algebraic move string as sent by a TEI engine's
// bestmove line or read from a PTN movetext. Placements are `[S|C]<square>`
// (bare square means a flat); spreads are `[count]<square><dir>[drops][*]`,
// where an omitted count defaults to 1 and omitted drops means the entire
// carried stack lands on the single adjacent square.
func (b *Board) ParseLAN(s string) (Move, error) {
	if s == "" {
		return Move{}, fmt.Errorf("position: empty move")
	}
	if hasDirectionSymbol(s) {
		return b.parseSpreadLAN(s)
	}
	return b.parsePlacementLAN(s)
}

func hasDirectionSymbol(s string) bool {
	return strings.ContainsAny(s, "+->") || strings.Contains(s, "<")
}

func (b *Board) parsePlacementLAN(s string) (Move, error) {
	idx := 0
	pt := Flat
	switch s[0] {
	case 'S':
		pt = Wall
		idx = 1
	case 'C':
		pt = Cap
		idx = 1
	}
	sq, err := parseSquareName(s[idx:], b.size)
	if err != nil {
		return Move{}, err
	}
	return Move{Square: sq, PlaceType: pt}, nil
}

func (b *Board) parseSpreadLAN(s string) (Move, error) {
	idx := 0
	count := 1
	if s[idx] >= '1' && s[idx] <= '9' {
		count = int(s[idx] - '0')
		idx++
	}
	if idx+2 > len(s) {
		return Move{}, fmt.Errorf("position: malformed spread %q", s)
	}
	sq, err := parseSquareName(s[idx:idx+2], b.size)
	if err != nil {
		return Move{}, err
	}
	idx += 2
	if idx >= len(s) {
		return Move{}, fmt.Errorf("position: spread %q missing direction", s)
	}
	dir, ok := directionFromSymbol(s[idx])
	if !ok {
		return Move{}, fmt.Errorf("position: unknown direction in %q", s)
	}
	idx++
	rest := s[idx:]
	crush := false
	if strings.HasSuffix(rest, "*") {
		crush = true
		rest = rest[:len(rest)-1]
	}
	var drops []int
	if rest == "" {
		drops = []int{count}
	} else {
		for _, c := range rest {
			if c < '0' || c > '9' {
				return Move{}, fmt.Errorf("position: malformed drop counts in %q", s)
			}
			drops = append(drops, int(c-'0'))
		}
	}
	return Move{
		IsSpread:  true,
		Square:    sq,
		Direction: dir,
		Count:     count,
		Drops:     drops,
		Crush:     crush,
	}, nil
}

// EncodeLAN is the inverse of ParseLAN: it produces the exact wire form the
// driver sends to an engine as part of a `position ... moves ...` command.
func (b *Board) EncodeLAN(m Move) string {
	if !m.IsSpread {
		prefix := ""
		switch m.PlaceType {
		case Wall:
			prefix = "S"
		case Cap:
			prefix = "C"
		}
		return prefix + squareName(m.Square, b.size)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d%s%c", m.Count, squareName(m.Square, b.size), m.Direction.symbol())
	if len(m.Drops) > 1 {
		for _, d := range m.Drops {
			sb.WriteString(strconv.Itoa(d))
		}
	}
	if m.Crush {
		sb.WriteByte('*')
	}
	return sb.String()
}
