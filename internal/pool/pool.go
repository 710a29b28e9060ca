// Package pool runs a tournament's scheduled games across a fixed number of
// worker goroutines, each owning a persistent set of engine processes that
// it reuses across every game it plays, rather than respawning an engine
// per game.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/racetrack/internal/driver"
	"github.com/freeeve/racetrack/internal/engine"
	"github.com/freeeve/racetrack/internal/opening"
	"github.com/freeeve/racetrack/internal/ptn"
	"github.com/freeeve/racetrack/internal/schedule"
)

// Participant names one engine entrant by its schedule ID.
type Participant struct {
	Config engine.Config
	Name   string
}

// Pool holds everything the worker goroutines need to run a full schedule:
// the participant configs, the scheduled games, the shared opening book,
// clock settings, and the places finished games are reported to.
type Pool struct {
	Participants []Participant
	Games        []schedule.ScheduledGame
	Openings     []opening.Opening
	HalfKomi     int
	BaseTime     time.Duration
	Increment    time.Duration
	Writer       *ptn.Writer

	// OnResult, if set, is invoked after each game is submitted to Writer.
	// It may be called concurrently from multiple worker goroutines.
	OnResult func(g schedule.ScheduledGame, rec ptn.GameRecord)

	schedMu  sync.Mutex
	nextIdx  int
	stopping int32 // atomic

	finishedMu sync.Mutex
	finished   []*ptn.GameRecord
}

// RequestShutdown tells every worker to stop picking up new games once its
// current game finishes. In-flight games are not interrupted; cancel the
// context passed to Run for that.
func (p *Pool) RequestShutdown() {
	atomic.StoreInt32(&p.stopping, 1)
}

func (p *Pool) shuttingDown() bool {
	return atomic.LoadInt32(&p.stopping) != 0
}

// nextGame pops the next scheduled game under the scheduler-cursor mutex,
// mirroring the original's Mutex<GamesSchedule>::next_unplayed_game.
func (p *Pool) nextGame() (schedule.ScheduledGame, bool) {
	p.schedMu.Lock()
	defer p.schedMu.Unlock()
	if p.nextIdx >= len(p.Games) {
		return schedule.ScheduledGame{}, false
	}
	g := p.Games[p.nextIdx]
	p.nextIdx++
	return g, true
}

func (p *Pool) recordFinished(round int, rec ptn.GameRecord) {
	p.finishedMu.Lock()
	if round >= 0 && round < len(p.finished) {
		cp := rec
		p.finished[round] = &cp
	}
	p.finishedMu.Unlock()
}

// SnapshotFinished returns a copy of the finished-games slots filled so
// far. It spins on a try-lock instead of blocking, since any worker
// holding the lock releases it almost immediately — acceptable because
// contention here is brief, matching the original's try_lock standings
// report.
func (p *Pool) SnapshotFinished() []*ptn.GameRecord {
	for !p.finishedMu.TryLock() {
		runtime.Gosched()
	}
	defer p.finishedMu.Unlock()
	out := make([]*ptn.GameRecord, len(p.finished))
	copy(out, p.finished)
	return out
}

// Run spawns `concurrency` worker goroutines and blocks until the schedule
// is exhausted, a worker hits an unrecoverable error, every worker has
// observed RequestShutdown, or ctx is canceled.
func (p *Pool) Run(ctx context.Context, concurrency int) error {
	if p.finished == nil {
		p.finished = make([]*ptn.GameRecord, len(p.Games))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, concurrency)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := p.runWorker(ctx, workerID); err != nil {
				errCh <- err
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// worker owns one persistent engine per participant ID it has needed so
// far, reused across every game it plays.
type worker struct {
	id      int
	engines map[int]*engine.Engine
}

func (p *Pool) runWorker(ctx context.Context, workerID int) error {
	w := &worker{id: workerID, engines: make(map[int]*engine.Engine)}
	defer func() {
		for _, e := range w.engines {
			e.Close()
		}
	}()

	for {
		if p.shuttingDown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sg, ok := p.nextGame()
		if !ok {
			return nil
		}

		if err := p.playOne(ctx, w, sg); err != nil {
			return fmt.Errorf("pool: worker %d: round %d: %w", workerID, sg.RoundNumber, err)
		}
	}
}

func (p *Pool) engineFor(ctx context.Context, w *worker, id int) (*engine.Engine, error) {
	if e, ok := w.engines[id]; ok && e.IsAlive() {
		return e, nil
	}
	if id < 0 || id >= len(p.Participants) {
		return nil, fmt.Errorf("pool: engine id %d out of range", id)
	}
	e := engine.New(p.Participants[id].Config)
	if err := e.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting %s: %w", p.Participants[id].Name, err)
	}
	w.engines[id] = e
	return e, nil
}

func (p *Pool) playOne(ctx context.Context, w *worker, sg schedule.ScheduledGame) error {
	white, err := p.engineFor(ctx, w, sg.WhiteEngineID)
	if err != nil {
		return err
	}
	black, err := p.engineFor(ctx, w, sg.BlackEngineID)
	if err != nil {
		return err
	}

	if err := white.NewGame(sg.BoardSize); err != nil {
		return fmt.Errorf("white teinewgame: %w", err)
	}
	if err := white.IsReady(ctx); err != nil {
		return fmt.Errorf("white isready: %w", err)
	}
	if err := black.NewGame(sg.BoardSize); err != nil {
		return fmt.Errorf("black teinewgame: %w", err)
	}
	if err := black.IsReady(ctx); err != nil {
		return fmt.Errorf("black isready: %w", err)
	}

	var op opening.Opening
	if len(p.Openings) > 0 {
		op = p.Openings[sg.OpeningIndex%len(p.Openings)]
	}

	out, err := driver.PlayGame(ctx, white, black, driver.Game{
		Scheduled: sg,
		Opening:   op,
		HalfKomi:  p.HalfKomi,
		BaseTime:  p.BaseTime,
		Increment: p.Increment,
		WhiteName: p.Participants[sg.WhiteEngineID].Name,
		BlackName: p.Participants[sg.BlackEngineID].Name,
	})
	if err != nil {
		if errors.Is(err, engine.ErrStdinWrite) {
			// Per the fatal-I/O-error taxonomy: store an empty placeholder
			// record so the PTN writer's ordering contract isn't blocked,
			// request a graceful shutdown, and let this and every other
			// worker finish whatever they're doing and exit rather than
			// aborting the run outright.
			log.Error().Int("round", sg.RoundNumber).Err(err).Msg("fatal io error; shutting down gracefully")
			placeholder := ptn.GameRecord{Round: sg.RoundNumber, Result: "*"}
			if p.Writer != nil {
				if werr := p.Writer.Submit(placeholder); werr != nil {
					log.Error().Int("round", sg.RoundNumber).Err(werr).Msg("failed to write placeholder record")
				}
			}
			p.recordFinished(sg.RoundNumber, placeholder)
			p.RequestShutdown()
			return nil
		}
		return fmt.Errorf("play: %w", err)
	}

	if out.RestartWhite {
		if err := white.Restart(ctx); err != nil {
			return fmt.Errorf("restarting white after forfeit: %w", err)
		}
	}
	if out.RestartBlack {
		if err := black.Restart(ctx); err != nil {
			return fmt.Errorf("restarting black after forfeit: %w", err)
		}
	}

	if p.Writer != nil {
		if err := p.Writer.Submit(out.Record); err != nil {
			log.Error().Int("round", sg.RoundNumber).Err(err).Msg("failed to write game record")
		}
	}
	p.recordFinished(sg.RoundNumber, out.Record)
	if p.OnResult != nil {
		p.OnResult(sg, out.Record)
	}
	return nil
}
