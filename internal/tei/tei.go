// Package tei parses the wire-level vocabulary of the TEI protocol: option
// declarations sent during handshake, info lines emitted during search, and
// the "<time>[+<increment>]" time-control syntax the CLI accepts for -tc.
// It holds no process or connection state — that is internal/engine's job.
package tei

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// OptionType is the declared type of an engine-advertised option.
type OptionType string

const (
	OptionCheck  OptionType = "check"
	OptionSpin   OptionType = "spin"
	OptionCombo  OptionType = "combo"
	OptionButton OptionType = "button"
	OptionString OptionType = "string"
)

// Option describes one "option name ... type ... [default ...] [min ...]
// [max ...] [var ...]*" line from the engine's handshake.
type Option struct {
	Name    string
	Type    OptionType
	Default string
	Min     string
	Max     string
	Vars    []string
}

// ParseOption parses an "option" line. Unlike a naive single-token-per-
// keyword scanner, the option name is taken as every token between "name"
// and the next recognized keyword, so multi-word names (e.g. "name Move
// Overhead") round-trip correctly.
func ParseOption(line string) (Option, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "option" {
		return Option{}, fmt.Errorf("tei: not an option line: %q", line)
	}
	tokens = tokens[1:]

	var opt Option
	i := 0
	for i < len(tokens) {
		switch tokens[i] {
		case "name":
			i++
			start := i
			for i < len(tokens) && !isOptionKeyword(tokens[i]) {
				i++
			}
			opt.Name = strings.Join(tokens[start:i], " ")
		case "type":
			i++
			if i >= len(tokens) {
				return Option{}, fmt.Errorf("tei: option %q missing type value", line)
			}
			opt.Type = OptionType(tokens[i])
			i++
		case "default":
			i++
			start := i
			for i < len(tokens) && !isOptionKeyword(tokens[i]) {
				i++
			}
			opt.Default = strings.Join(tokens[start:i], " ")
		case "min":
			i++
			if i < len(tokens) {
				opt.Min = tokens[i]
				i++
			}
		case "max":
			i++
			if i < len(tokens) {
				opt.Max = tokens[i]
				i++
			}
		case "var":
			i++
			start := i
			for i < len(tokens) && !isOptionKeyword(tokens[i]) {
				i++
			}
			if start < i {
				opt.Vars = append(opt.Vars, strings.Join(tokens[start:i], " "))
			}
		default:
			i++
		}
	}
	if opt.Name == "" {
		return Option{}, fmt.Errorf("tei: option line has no name: %q", line)
	}
	return opt, nil
}

func isOptionKeyword(tok string) bool {
	switch tok {
	case "type", "default", "min", "max", "var":
		return true
	default:
		return false
	}
}

// Info is one "info ..." line emitted by an engine during search.
type Info struct {
	Depth    int
	SelDepth int
	Time     int // milliseconds
	Nodes    int
	NPS      int
	ScoreCP  int
	HasScore bool
	PV       []string
}

// ParseInfo walks an info line token by token, consuming the next token as
// each keyword's value, with the multi-token "pv" continuation running to
// the end of the line.
func ParseInfo(line string) (Info, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "info" {
		return Info{}, fmt.Errorf("tei: not an info line: %q", line)
	}
	var info Info
	for i := 1; i < len(tokens); i++ {
		switch tokens[i] {
		case "depth":
			if i+1 < len(tokens) {
				i++
				info.Depth, _ = strconv.Atoi(tokens[i])
			}
		case "seldepth":
			if i+1 < len(tokens) {
				i++
				info.SelDepth, _ = strconv.Atoi(tokens[i])
			}
		case "time":
			if i+1 < len(tokens) {
				i++
				info.Time, _ = strconv.Atoi(tokens[i])
			}
		case "nodes":
			if i+1 < len(tokens) {
				i++
				info.Nodes, _ = strconv.Atoi(tokens[i])
			}
		case "nps":
			if i+1 < len(tokens) {
				i++
				info.NPS, _ = strconv.Atoi(tokens[i])
			}
		case "score":
			if i+1 < len(tokens) && tokens[i+1] == "cp" && i+2 < len(tokens) {
				i += 2
				info.ScoreCP, _ = strconv.Atoi(tokens[i])
				info.HasScore = true
			}
		case "pv":
			info.PV = append([]string(nil), tokens[i+1:]...)
			return info, nil
		}
	}
	return info, nil
}

// ParseTimeControl parses the CLI's "<seconds>[+<increment-seconds>]" time
// control syntax into millisecond base time and increment, e.g. "60+0.6" ->
// (60000, 600), "5" -> (5000, 0).
func ParseTimeControl(s string) (base, increment time.Duration, err error) {
	parts := strings.SplitN(s, "+", 2)
	baseSecs, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("tei: malformed time control %q: %w", s, err)
	}
	base = time.Duration(math.Round(baseSecs*1000)) * time.Millisecond
	if len(parts) == 2 {
		incSecs, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("tei: malformed increment in %q: %w", s, err)
		}
		increment = time.Duration(math.Round(incSecs*1000)) * time.Millisecond
	}
	return base, increment, nil
}
