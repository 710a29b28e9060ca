// Package driver plays a single scheduled game to completion by speaking
// TEI to a pair of already-handshaken engines, enforcing clocks, move
// legality, and the maximum game length, and producing a ptn.GameRecord.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/racetrack/internal/engine"
	"github.com/freeeve/racetrack/internal/opening"
	"github.com/freeeve/racetrack/internal/position"
	"github.com/freeeve/racetrack/internal/ptn"
	"github.com/freeeve/racetrack/internal/schedule"
)

// maxPlies caps game length; a game that runs past it is truncated and
// recorded as a draw, matching the original's 200-move safeguard scaled up
// for the largest board size this repo supports.
const maxPlies = 1000

// Game is everything PlayGame needs beyond the two engine handles: the
// schedule entry, the opening to replay first, half-komi, and each side's
// base time and increment.
type Game struct {
	Scheduled schedule.ScheduledGame
	Opening   opening.Opening
	HalfKomi  int
	BaseTime  time.Duration
	Increment time.Duration
	WhiteName string
	BlackName string
}

// Outcome is PlayGame's result: the finished record plus which side (if
// either) needs its engine restarted before the worker can reuse it.
type Outcome struct {
	Record       ptn.GameRecord
	RestartWhite bool
	RestartBlack bool
}

// PlayGame runs one game between white and black, already handshaken and
// past teinewgame/isready for this round, and returns a completed
// ptn.GameRecord. It never returns an error for ordinary game endings
// (crash, illegal move, time loss, move-limit) — those are all recorded as
// results with a Termination tag. It returns an error for a stdin write
// fault against either engine (wrapping engine.ErrStdinWrite, for the
// caller to detect with errors.Is) and for a genuinely unrecoverable
// condition on the driver's own side, such as an opening that fails to
// replay against a freshly started board.
func PlayGame(ctx context.Context, white, black *engine.Engine, g Game) (Outcome, error) {
	board, err := position.Start(g.Scheduled.BoardSize, g.HalfKomi)
	if err != nil {
		return Outcome{}, fmt.Errorf("driver: %w", err)
	}
	var pos position.Position = board
	if g.Opening.TPS != "" {
		pos, err = position.FromTPS(g.Opening.TPS, g.Scheduled.BoardSize, g.HalfKomi)
		if err != nil {
			return Outcome{}, fmt.Errorf("driver: opening TPS: %w", err)
		}
	}

	var moveRecords []ptn.MoveRecord
	for _, lan := range g.Opening.Moves {
		m, err := pos.ParseLAN(lan)
		if err != nil {
			return Outcome{}, fmt.Errorf("driver: opening move %q: %w", lan, err)
		}
		if err := pos.Apply(m); err != nil {
			return Outcome{}, fmt.Errorf("driver: applying opening move %q: %w", lan, err)
		}
		moveRecords = append(moveRecords, ptn.MoveRecord{LAN: lan})
	}

	whiteTime, blackTime := g.BaseTime, g.BaseTime

	var result position.Result
	var termination string
	restartWhite, restartBlack := false, false

gameLoop:
	for {
		if len(moveRecords) >= maxPlies {
			result = position.Draw
			termination = fmt.Sprintf("game terminated after reaching %d plies", maxPlies)
			break
		}
		if r := pos.Result(); r != position.NoResult {
			result = r
			break
		}

		moverColor := pos.SideToMove()
		mover := white
		if moverColor == position.Black {
			mover = black
		}

		lans := make([]string, len(moveRecords))
		for i, mr := range moveRecords {
			lans[i] = mr.LAN
		}
		startToken := "startpos"
		if g.Opening.TPS != "" {
			startToken = "tps " + g.Opening.TPS
		}
		if err := mover.Position(startToken, lans); err != nil {
			return Outcome{}, fmt.Errorf("driver: round %d: %w", g.Scheduled.RoundNumber, err)
		}

		searchStart := time.Now()
		sr, err := mover.Go(ctx, engine.GoParams{
			WTime: whiteTime, BTime: blackTime, WInc: g.Increment, BInc: g.Increment,
		})
		elapsed := time.Since(searchStart)

		if err != nil {
			if errors.Is(err, engine.ErrStdinWrite) {
				// A write-side fault against the engine process is not a
				// recoverable in-game condition the way a read-side crash
				// is: the caller stores an empty placeholder record for
				// this round (to keep the PTN writer's ordering contract
				// unblocked) and begins a graceful tournament shutdown,
				// rather than scoring a forfeit here.
				return Outcome{}, fmt.Errorf("driver: round %d: %w", g.Scheduled.RoundNumber, err)
			}
			log.Warn().Str("engine", engineID(mover)).Int("round", g.Scheduled.RoundNumber).
				Err(err).Msg("engine disconnected or crashed during game")
			if moverColor == position.White {
				result, termination, restartWhite = position.BlackWin, "White disconnected or crashed", true
			} else {
				result, termination, restartBlack = position.WhiteWin, "Black disconnected or crashed", true
			}
			break
		}

		mv, parseErr := pos.ParseLAN(sr.BestMove)
		if parseErr != nil || !legal(pos, mv) {
			if moverColor == position.White {
				result, termination = position.BlackWin, "White made an illegal move"
			} else {
				result, termination = position.WhiteWin, "Black made an illegal move"
			}
			break
		}

		comment := formatComment(sr, elapsed, moverColor)
		lan := pos.EncodeLAN(mv)
		if err := pos.Apply(mv); err != nil {
			if moverColor == position.White {
				result, termination = position.BlackWin, "White made an illegal move"
			} else {
				result, termination = position.WhiteWin, "Black made an illegal move"
			}
			break
		}
		moveRecords = append(moveRecords, ptn.MoveRecord{LAN: lan, Comment: comment})

		if moverColor == position.White {
			if elapsed <= whiteTime {
				whiteTime = whiteTime - elapsed + g.Increment
			} else {
				result, termination = position.BlackWin, "White wins on time"
				break gameLoop
			}
		} else {
			if elapsed <= blackTime {
				blackTime = blackTime - elapsed + g.Increment
			} else {
				result, termination = position.WhiteWin, "Black wins on time"
				break gameLoop
			}
		}
	}

	rec := ptn.GameRecord{
		Round:  g.Scheduled.RoundNumber,
		Moves:  moveRecords,
		Result: result.String(),
		Tags: []ptn.Tag{
			{Key: "Player1", Value: g.WhiteName},
			{Key: "Player2", Value: g.BlackName},
			{Key: "Round", Value: strconv.Itoa(g.Scheduled.RoundNumber + 1)},
			{Key: "Size", Value: strconv.Itoa(g.Scheduled.BoardSize)},
			{Key: "Date", Value: time.Now().Format("2006.01.02")},
			{Key: "Clock", Value: formatClock(g.BaseTime, g.Increment)},
		},
	}
	if g.HalfKomi != 0 {
		rec.Tags = append(rec.Tags, ptn.Tag{Key: "Komi", Value: formatKomi(g.HalfKomi)})
	}
	if termination != "" {
		rec.Tags = append(rec.Tags, ptn.Tag{Key: "Termination", Value: termination})
	}
	if g.Opening.TPS != "" {
		rec.StartTPS = g.Opening.TPS
	}

	return Outcome{Record: rec, RestartWhite: restartWhite, RestartBlack: restartBlack}, nil
}

func legal(pos position.Position, mv position.Move) bool {
	for _, candidate := range pos.GenerateLegal() {
		if sameMove(candidate, mv) {
			return true
		}
	}
	return false
}

func sameMove(a, b position.Move) bool {
	if a.IsSpread != b.IsSpread || a.Square != b.Square {
		return false
	}
	if !a.IsSpread {
		return a.PlaceType == b.PlaceType
	}
	if a.Direction != b.Direction || a.Count != b.Count || a.Crush != b.Crush || len(a.Drops) != len(b.Drops) {
		return false
	}
	for i := range a.Drops {
		if a.Drops[i] != b.Drops[i] {
			return false
		}
	}
	return true
}

// formatComment renders the "score/depth time" annotation attached to a
// move in the PTN output, sign-flipped for Black since scores are always
// reported from the mover's own perspective.
func formatComment(sr engine.SearchResult, elapsed time.Duration, mover position.Color) string {
	if len(sr.Infos) == 0 {
		return ""
	}
	last := sr.Infos[len(sr.Infos)-1]
	if !last.HasScore {
		return ""
	}
	cp := last.ScoreCP
	if mover == position.Black {
		cp = -cp
	}
	sign := ""
	if cp > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f/%d %.2fs", sign, float64(cp)/100.0, last.Depth, elapsed.Seconds())
}

// formatClock renders the game's time control as "M:SS +I", both sides
// sharing one base time and increment in this runner (there's no
// asymmetric-clock configuration to report separately).
func formatClock(base, increment time.Duration) string {
	minutes := int(base / time.Minute)
	seconds := int(base%time.Minute) / int(time.Second)
	incSeconds := int(increment / time.Second)
	return fmt.Sprintf("%d:%02d +%d", minutes, seconds, incSeconds)
}

// formatKomi renders a half-komi value as a full-point score, e.g. 4 -> "2",
// 1 -> "0.5".
func formatKomi(halfKomi int) string {
	if halfKomi%2 == 0 {
		return strconv.Itoa(halfKomi / 2)
	}
	return fmt.Sprintf("%.1f", float64(halfKomi)/2.0)
}

func engineID(e *engine.Engine) string {
	if e == nil {
		return "?"
	}
	return e.Identity.Name
}
