// Package config parses the racetrack command line into a validated
// Config, following the original CLI's flag set (size, concurrency,
// games, per-engine path/args/options, time control, opening book, komi)
// extended with the ambient logging and optional spectator-feed fields
// this port adds, plus the tournament-shape and SPRT flags needed to run
// more than a fixed two-engine match.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/freeeve/racetrack/internal/opening"
	"github.com/freeeve/racetrack/internal/schedule"
	"github.com/freeeve/racetrack/internal/tei"
)

// EngineSpec is one participant: its executable, optional argument list,
// and any TEI options to set during handshake.
type EngineSpec struct {
	Name    string
	Path    string
	Args    []string
	Options map[string]string
}

// Config holds everything parsed from the command line.
type Config struct {
	Size        int
	Concurrency int
	Games       int
	Time        time.Duration
	Increment   time.Duration
	Engines     []EngineSpec
	HalfKomi    int

	Shape schedule.Shape

	PgnOut string

	BookPath       string
	BookFormat     opening.Format
	ShuffleBook    bool
	BookStartIndex int
	Seed           int64

	LogFile  string
	LogLevel string

	SPRT  bool
	Elo0  float64
	Elo1  float64
	Alpha float64
	Beta  float64

	SpectateAddr   string
	SpectateSecret string
}

// engineValue accumulates repeated -engine flags, one per participant.
// Each occurrence is either a bare path, or a "path|args|opt=val,opt=val"
// triplet using '|' to separate the three fields, generalizing the
// original's fixed two-engine positional pair into the N-engine shapes
// (gauntlet, round-robin, book-test) the scheduler supports.
type engineValue struct {
	specs *[]EngineSpec
}

func (v *engineValue) String() string { return "" }

func (v *engineValue) Set(value string) error {
	parts := strings.SplitN(value, "|", 3)
	spec := EngineSpec{Path: parts[0]}
	if len(parts) > 1 && parts[1] != "" {
		spec.Args = strings.Fields(parts[1])
	}
	if len(parts) > 2 && parts[2] != "" {
		spec.Options = make(map[string]string)
		for _, kv := range strings.Split(parts[2], ",") {
			nv := strings.SplitN(kv, "=", 2)
			if len(nv) == 2 {
				spec.Options[nv[0]] = nv[1]
			} else {
				spec.Options[nv[0]] = ""
			}
		}
	}
	spec.Name = fmt.Sprintf("engine%d", len(*v.specs))
	*v.specs = append(*v.specs, spec)
	return nil
}

// Parse parses args (typically os.Args[1:]) into a Config. Any unparseable
// or out-of-range flag is a startup error.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("racetrack", flag.ContinueOnError)

	size := fs.Int("size", 5, "board size, 4-8")
	concurrency := fs.Int("concurrency", 1, "number of games to run in parallel, 1-1024")
	games := fs.Int("games", 0, "number of games to play")
	tc := fs.String("tc", "", "time control for each game: seconds[+increment-seconds]")
	pgnout := fs.String("ptnout", "", "output file all game PTNs are appended to")
	bookPath := fs.String("book", "", "opening book file")
	bookFormat := fs.String("book-format", "move-list", "opening book format: move-list, tps, or ptn")
	bookStart := fs.Int("book-start", 1, "index (1-based) of the first opening to use")
	shuffleBook := fs.Bool("shuffle-book", false, "shuffle the opening book before play")
	seed := fs.Int64("seed", 0, "seed for book shuffling; 0 derives from the current time")
	komi := fs.Int("komi", 0, "half-komi bonus for the second player")
	logFile := fs.String("log", "", "debug log file; if unset, no debug log is written")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	shape := fs.String("shape", "head-to-head", "tournament shape: head-to-head, gauntlet, round-robin, book-test, sprt")
	sprtElo0 := fs.Float64("sprt-elo0", 0, "SPRT null-hypothesis elo")
	sprtElo1 := fs.Float64("sprt-elo1", 5, "SPRT alternative-hypothesis elo")
	sprtAlpha := fs.Float64("sprt-alpha", 0.05, "SPRT alpha (type-1 error rate)")
	sprtBeta := fs.Float64("sprt-beta", 0.05, "SPRT beta (type-2 error rate)")
	spectateAddr := fs.String("spectate-addr", "", "address to serve the optional spectator feed on, e.g. :8080")
	spectateSecret := fs.String("spectate-secret", "", "signing secret for spectator viewer tokens")

	var engines []EngineSpec
	fs.Var(&engineValue{specs: &engines}, "engine", "engine participant: path, or path|args|opt=val,opt=val; repeatable")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Size:           *size,
		Concurrency:    *concurrency,
		Games:          *games,
		Engines:        engines,
		HalfKomi:       *komi,
		PgnOut:         *pgnout,
		BookPath:       *bookPath,
		ShuffleBook:    *shuffleBook,
		BookStartIndex: *bookStart - 1,
		Seed:           *seed,
		LogFile:        *logFile,
		LogLevel:       *logLevel,
		Elo0:           *sprtElo0,
		Elo1:           *sprtElo1,
		Alpha:          *sprtAlpha,
		Beta:           *sprtBeta,
		SpectateAddr:   *spectateAddr,
		SpectateSecret: *spectateSecret,
	}

	switch *bookFormat {
	case "move-list":
		cfg.BookFormat = opening.FormatMoveList
	case "tps":
		cfg.BookFormat = opening.FormatTPS
	case "ptn":
		cfg.BookFormat = opening.FormatPTN
	default:
		return nil, fmt.Errorf("config: unsupported book format %q", *bookFormat)
	}

	switch *shape {
	case "head-to-head":
		cfg.Shape = schedule.HeadToHead
	case "sprt":
		cfg.Shape = schedule.SPRT
		cfg.SPRT = true
	case "gauntlet":
		cfg.Shape = schedule.Gauntlet
	case "round-robin":
		cfg.Shape = schedule.RoundRobin
	case "book-test":
		cfg.Shape = schedule.BookTest
	default:
		return nil, fmt.Errorf("config: unsupported tournament shape %q", *shape)
	}

	if *tc != "" {
		base, inc, err := tei.ParseTimeControl(*tc)
		if err != nil {
			return nil, fmt.Errorf("config: time control: %w", err)
		}
		cfg.Time, cfg.Increment = base, inc
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Size < 4 || c.Size > 8 {
		return fmt.Errorf("config: size must be in [4,8], got %d", c.Size)
	}
	if c.Concurrency < 1 || c.Concurrency > 1024 {
		return fmt.Errorf("config: concurrency must be in [1,1024], got %d", c.Concurrency)
	}
	if c.Games <= 0 {
		return fmt.Errorf("config: games must be positive")
	}
	if c.Time <= 0 {
		return fmt.Errorf("config: a time control (-tc) is required")
	}
	if len(c.Engines) < 2 {
		return fmt.Errorf("config: at least 2 -engine entries are required, got %d", len(c.Engines))
	}
	if (c.Shape == schedule.HeadToHead || c.Shape == schedule.SPRT) && len(c.Engines) != 2 {
		return fmt.Errorf("config: %s requires exactly 2 engines, got %d", c.Shape, len(c.Engines))
	}
	if c.SPRT {
		if !(c.Alpha > 0 && c.Alpha < 0.5) || !(c.Beta > 0 && c.Beta < 0.5) {
			return fmt.Errorf("config: sprt-alpha and sprt-beta must satisfy 0 < x < 0.5")
		}
		if c.Elo1 <= c.Elo0 {
			return fmt.Errorf("config: sprt-elo1 must be greater than sprt-elo0")
		}
	}
	if c.BookPath == "" && c.BookStartIndex != 0 {
		return fmt.Errorf("config: book-start requires -book")
	}
	if c.BookPath == "" && c.ShuffleBook {
		return fmt.Errorf("config: shuffle-book requires -book")
	}
	if c.ShuffleBook && c.BookStartIndex != 0 {
		return fmt.Errorf("config: shuffle-book and book-start are mutually exclusive")
	}
	return nil
}

// ScheduleN returns the shape parameter schedule.Config.N expects, derived
// from the engine count rather than a separate flag: the challenger count
// for Gauntlet, the total engine count for RoundRobin/BookTest, and unused
// (zero) for HeadToHead/SPRT.
func (c *Config) ScheduleN() int {
	switch c.Shape {
	case schedule.Gauntlet:
		return len(c.Engines) - 1
	case schedule.RoundRobin, schedule.BookTest:
		return len(c.Engines)
	default:
		return 0
	}
}
