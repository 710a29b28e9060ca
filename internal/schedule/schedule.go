// Package schedule produces the deterministic (round, opening, white, black)
// sequence a tournament plays, for the five supported tournament shapes. All
// scheduling is pure: the same config always produces the same sequence.
package schedule

import "fmt"

// Shape names a tournament format.
type Shape int

const (
	HeadToHead Shape = iota
	SPRT
	Gauntlet
	RoundRobin
	BookTest
)

func (s Shape) String() string {
	switch s {
	case HeadToHead:
		return "head-to-head"
	case SPRT:
		return "sprt"
	case Gauntlet:
		return "gauntlet"
	case RoundRobin:
		return "round-robin"
	case BookTest:
		return "book-test"
	default:
		return "unknown"
	}
}

// Config configures schedule construction. N is the shape parameter: for
// Gauntlet it is the challenger count C (engine count is C+1, champion is
// engine 0); for RoundRobin and BookTest it is the engine count N;
// HeadToHead and SPRT always involve exactly 2 engines and ignore N.
type Config struct {
	NumGames          int
	Shape             Shape
	N                 int
	OpeningCount      int
	OpeningStartIndex int
	BoardSize         int
}

// ScheduledGame is one entry of the schedule: an immutable assignment of
// round, opening, and engine colors. Never mutated once produced.
type ScheduledGame struct {
	RoundNumber   int
	OpeningIndex  int
	WhiteEngineID int
	BlackEngineID int
	BoardSize     int
}

// Build produces exactly cfg.NumGames scheduled games. It returns a
// non-fatal warning string when NumGames is not a multiple of the shape's
// alignment period, matching spec's "non-fatal warning" requirement.
func Build(cfg Config) ([]ScheduledGame, string, error) {
	if cfg.OpeningCount <= 0 {
		return nil, "", fmt.Errorf("schedule: need at least one opening")
	}
	period, err := alignmentPeriod(cfg)
	if err != nil {
		return nil, "", err
	}
	var warning string
	if period > 0 && cfg.NumGames%period != 0 {
		warning = fmt.Sprintf("schedule: num_games %d is not a multiple of alignment period %d", cfg.NumGames, period)
	}

	games := make([]ScheduledGame, 0, cfg.NumGames)
	for r := 0; r < cfg.NumGames; r++ {
		white, black, err := assignRoles(cfg, r)
		if err != nil {
			return nil, "", err
		}
		openingIdx := (cfg.OpeningStartIndex + r/period) % cfg.OpeningCount
		games = append(games, ScheduledGame{
			RoundNumber:   r,
			OpeningIndex:  openingIdx,
			WhiteEngineID: white,
			BlackEngineID: black,
			BoardSize:     cfg.BoardSize,
		})
	}
	return games, warning, nil
}

func alignmentPeriod(cfg Config) (int, error) {
	switch cfg.Shape {
	case HeadToHead, SPRT:
		return 2, nil
	case Gauntlet:
		if cfg.N < 1 {
			return 0, fmt.Errorf("schedule: gauntlet needs at least 1 challenger")
		}
		return 2 * cfg.N, nil
	case RoundRobin:
		if cfg.N < 2 {
			return 0, fmt.Errorf("schedule: round-robin needs at least 2 engines")
		}
		return cfg.N * (cfg.N - 1), nil
	case BookTest:
		if cfg.N < 1 {
			return 0, fmt.Errorf("schedule: book-test needs at least 1 engine")
		}
		return cfg.N * cfg.N, nil
	default:
		return 0, fmt.Errorf("schedule: unknown shape %v", cfg.Shape)
	}
}

func assignRoles(cfg Config, r int) (white, black int, err error) {
	switch cfg.Shape {
	case HeadToHead, SPRT:
		white = r % 2
		black = 1 - white
		return white, black, nil
	case Gauntlet:
		c := cfg.N
		champion := 0
		challenger := (r % c) + 1
		if (r/c)%2 == 0 {
			return champion, challenger, nil
		}
		return challenger, champion, nil
	case RoundRobin:
		n := cfg.N
		white = (r / (n - 1)) % n
		black = (r + (r%(n*(n-1)))/n + 1) % n
		return white, black, nil
	case BookTest:
		n := cfg.N
		white = (r / n) % n
		black = r % n
		return white, black, nil
	default:
		return 0, 0, fmt.Errorf("schedule: unknown shape %v", cfg.Shape)
	}
}
