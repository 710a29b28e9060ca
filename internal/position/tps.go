package position

import (
	"fmt"
	"strconv"
	"strings"
)

// ToTPS serializes the board to Tak Position System notation: rows from
// top (highest rank) to bottom, run-length-encoded empty squares, stacks as
// bottom-to-top color digits with a trailing S/C for a standing wall or
// capstone top, then the side to move and the full-move number.
func (b *Board) ToTPS() string {
	var rows []string
	for row := b.size - 1; row >= 0; row-- {
		var cells []string
		emptyRun := 0
		flush := func() {
			if emptyRun > 0 {
				if emptyRun == 1 {
					cells = append(cells, "x")
				} else {
					cells = append(cells, fmt.Sprintf("x%d", emptyRun))
				}
				emptyRun = 0
			}
		}
		for col := 0; col < b.size; col++ {
			sq := row*b.size + col
			stack := b.stacks[sq]
			if len(stack) == 0 {
				emptyRun++
				continue
			}
			flush()
			var sb strings.Builder
			for _, p := range stack {
				if p.Color == White {
					sb.WriteByte('1')
				} else {
					sb.WriteByte('2')
				}
			}
			top := stack[len(stack)-1]
			switch top.Type {
			case Wall:
				sb.WriteByte('S')
			case Cap:
				sb.WriteByte('C')
			}
			cells = append(cells, sb.String())
		}
		flush()
		rows = append(rows, strings.Join(cells, ","))
	}
	side := 1
	if b.toMove == Black {
		side = 2
	}
	fullMove := b.ply/2 + 1
	return fmt.Sprintf("%s %d %d", strings.Join(rows, "/"), side, fullMove)
}

// FromTPS parses a TPS string into a fresh board of the given size and
// half-komi.
func FromTPS(tps string, size, halfKomi int) (*Board, error) {
	b, err := Start(size, halfKomi)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(tps)
	if len(fields) != 3 {
		return nil, fmt.Errorf("position: malformed tps %q", tps)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != size {
		return nil, fmt.Errorf("position: tps has %d rows, want %d", len(rows), size)
	}
	for i, rowStr := range rows {
		row := size - 1 - i
		col := 0
		for _, cell := range strings.Split(rowStr, ",") {
			if cell == "" {
				continue
			}
			if cell[0] == 'x' {
				n := 1
				if len(cell) > 1 {
					v, err := strconv.Atoi(cell[1:])
					if err != nil {
						return nil, fmt.Errorf("position: malformed empty run %q: %w", cell, err)
					}
					n = v
				}
				col += n
				continue
			}
			if col >= size {
				return nil, fmt.Errorf("position: tps row %d overflows board width", i)
			}
			stack, err := parseStackCell(cell)
			if err != nil {
				return nil, err
			}
			b.stacks[row*size+col] = stack
			b.consumeReserves(stack)
			col++
		}
		if col != size {
			return nil, fmt.Errorf("position: tps row %d has %d columns, want %d", i, col, size)
		}
	}
	side, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("position: malformed side-to-move %q: %w", fields[1], err)
	}
	fullMove, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("position: malformed move number %q: %w", fields[2], err)
	}
	if side == 1 {
		b.toMove = White
		b.ply = (fullMove - 1) * 2
	} else {
		b.toMove = Black
		b.ply = (fullMove-1)*2 + 1
	}
	return b, nil
}

func parseStackCell(cell string) ([]Piece, error) {
	top := Flat
	digits := cell
	switch cell[len(cell)-1] {
	case 'S':
		top = Wall
		digits = cell[:len(cell)-1]
	case 'C':
		top = Cap
		digits = cell[:len(cell)-1]
	}
	if digits == "" {
		return nil, fmt.Errorf("position: empty stack cell %q", cell)
	}
	stack := make([]Piece, 0, len(digits))
	for i, d := range digits {
		var c Color
		switch d {
		case '1':
			c = White
		case '2':
			c = Black
		default:
			return nil, fmt.Errorf("position: malformed stack cell %q", cell)
		}
		t := Flat
		if i == len(digits)-1 {
			t = top
		}
		stack = append(stack, Piece{Color: c, Type: t})
	}
	return stack, nil
}

// consumeReserves deducts the reserves a pre-placed stack (loaded from TPS)
// would have consumed, so a board parsed mid-game reports accurate counts.
func (b *Board) consumeReserves(stack []Piece) {
	for i, p := range stack {
		r := &b.reserves[p.Color]
		if i == len(stack)-1 && p.Type == Cap {
			r.caps--
		} else {
			r.stones--
		}
	}
}
