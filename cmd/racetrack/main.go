// Command racetrack runs a Tak engine tournament: it loads a configuration
// from the command line, schedules the games for the chosen tournament
// shape, plays them across a pool of worker goroutines, writes every game
// to a PTN file in round order, and — for two-engine shapes — evaluates a
// GSPRT stopping rule after each completed game pair.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/racetrack/internal/config"
	"github.com/freeeve/racetrack/internal/engine"
	"github.com/freeeve/racetrack/internal/logger"
	"github.com/freeeve/racetrack/internal/opening"
	"github.com/freeeve/racetrack/internal/pool"
	"github.com/freeeve/racetrack/internal/ptn"
	"github.com/freeeve/racetrack/internal/schedule"
	"github.com/freeeve/racetrack/internal/spectate"
	"github.com/freeeve/racetrack/internal/stats"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Warn().Err(err).Msg("logger: continuing without a log file")
	}

	openings, err := loadOpenings(cfg)
	if err != nil {
		log.Error().Err(err).Msg("loading opening book")
		return 1
	}

	scheduled, warning, err := schedule.Build(schedule.Config{
		NumGames:          cfg.Games,
		Shape:             cfg.Shape,
		N:                 cfg.ScheduleN(),
		OpeningCount:      len(openings),
		OpeningStartIndex: cfg.BookStartIndex,
		BoardSize:         cfg.Size,
	})
	if err != nil {
		log.Error().Err(err).Msg("building tournament schedule")
		return 1
	}
	if warning != "" {
		log.Warn().Msg(warning)
	}

	participants := make([]pool.Participant, len(cfg.Engines))
	for i, e := range cfg.Engines {
		participants[i] = pool.Participant{
			Name: e.Name,
			Config: engine.Config{
				ID:       e.Name,
				Path:     e.Path,
				Args:     e.Args,
				Options:  e.Options,
				HalfKomi: cfg.HalfKomi,
			},
		}
	}

	out, closeOut, err := openPTNOutput(cfg.PgnOut)
	if err != nil {
		log.Error().Err(err).Msg("opening ptnout file")
		return 1
	}
	defer closeOut()
	writer := ptn.NewWriter(out)

	mon := newMonitor(cfg, scheduled)

	p := &pool.Pool{
		Participants: participants,
		Games:        scheduled,
		Openings:     openings,
		HalfKomi:     cfg.HalfKomi,
		BaseTime:     cfg.Time,
		Increment:    cfg.Increment,
		Writer:       writer,
		OnResult:     mon.onResult,
	}
	mon.pool = p

	specServer := maybeStartSpectator(cfg, mon)
	if specServer != nil {
		defer specServer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(p)

	if err := p.Run(ctx, cfg.Concurrency); err != nil {
		log.Error().Err(err).Msg("tournament run failed")
		return 1
	}

	mon.printFinalStandings()
	return 0
}

func loadOpenings(cfg *config.Config) ([]opening.Opening, error) {
	if cfg.BookPath == "" {
		return []opening.Opening{{}}, nil
	}
	openings, err := opening.Load(cfg.BookPath, cfg.BookFormat, cfg.Size)
	if err != nil {
		return nil, err
	}
	if cfg.ShuffleBook {
		r := newSeededRand(cfg.Seed)
		r.Shuffle(len(openings), func(i, j int) { openings[i], openings[j] = openings[j], openings[i] })
	}
	return openings, nil
}

func newSeededRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func openPTNOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("ptnout: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func installSignalHandler(p *pool.Pool) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutdown requested; draining in-progress games")
		p.RequestShutdown()
		<-sig
		log.Warn().Msg("second shutdown signal received; exiting immediately")
		os.Exit(1)
	}()
}

func maybeStartSpectator(cfg *config.Config, mon *monitor) *spectate.Server {
	if cfg.SpectateAddr == "" {
		return nil
	}
	auth := spectate.NewAuth(cfg.SpectateSecret)
	token, err := auth.IssueViewerToken(24 * time.Hour)
	if err != nil {
		log.Warn().Err(err).Msg("spectate: failed to mint viewer token; feed disabled")
		return nil
	}
	hub := spectate.NewHub()
	mon.hub = hub
	srv := spectate.NewServer(cfg.SpectateAddr, hub, auth)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Warn().Err(err).Msg("spectate: server stopped")
		}
	}()
	log.Info().Str("addr", cfg.SpectateAddr).Str("token", token).Msg("spectator feed listening")
	return srv
}

// tournamentPool is the slice of pool.Pool's surface monitor needs: reading
// the finished-games snapshot and requesting a graceful shutdown when the
// SPRT stopping rule fires. Narrowing to an interface keeps monitor testable
// without a real worker pool.
type tournamentPool interface {
	SnapshotFinished() []*ptn.GameRecord
	RequestShutdown()
}

// monitor recomputes standings (and, for a two-engine SPRT run, the GSPRT
// LLR) every time a worker reports a finished game, matching the original's
// "recompute and print standings" step of the worker main loop.
type monitor struct {
	games  []schedule.ScheduledGame
	sprt   bool
	params stats.SPRTParams

	mu             sync.Mutex
	processedPairs map[int]bool
	tally          stats.Tally
	pool           tournamentPool
	hub            *spectate.Hub
}

func newMonitor(cfg *config.Config, games []schedule.ScheduledGame) *monitor {
	m := &monitor{games: games, processedPairs: make(map[int]bool)}
	if cfg.SPRT {
		params, err := stats.NewSPRTParams(cfg.Elo0, cfg.Elo1, cfg.Alpha, cfg.Beta)
		if err != nil {
			log.Warn().Err(err).Msg("sprt: invalid parameters; stopping rule disabled")
		} else {
			m.sprt = true
			m.params = params
		}
	}
	return m
}

func (m *monitor) onResult(g schedule.ScheduledGame, rec ptn.GameRecord) {
	if m.hub != nil {
		m.hub.Update(spectate.GameState{
			Round:     rec.Round,
			WhiteName: tagValue(rec, "Player1"),
			BlackName: tagValue(rec, "Player2"),
			Moves:     rec.Moves,
			Result:    rec.Result,
		})
	}

	finished := m.pool.SnapshotFinished()
	m.printStandings(finished)

	if !m.sprt {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pairIdx := g.RoundNumber / 2
	if m.processedPairs[pairIdx] {
		return
	}
	if pairIdx*2+1 >= len(finished) {
		return
	}
	first, second := finished[pairIdx*2], finished[pairIdx*2+1]
	if first == nil || second == nil || first.Result == "" || second.Result == "" {
		return
	}
	m.processedPairs[pairIdx] = true
	m.tally.AddPair(convertResult(first.Result), convertResult(second.Result))

	llr := stats.LLR(m.tally, m.params)
	mean, variance := m.tally.ScoreAndVariance()
	elo := stats.NormalizedElo(mean, variance)
	decision := stats.Evaluate(llr, m.params)
	log.Info().Int("pairs", m.tally.N()).Float64("llr", llr).Str("elo", stats.FormatElo(elo)).Msg("sprt progress")
	if decision != stats.Continue {
		log.Info().Str("decision", sprtDecisionString(decision)).Msg("sprt stopping rule triggered")
		m.pool.RequestShutdown()
	}
}

type engineRecord struct {
	wins, draws, losses int
}

func (m *monitor) printStandings(finished []*ptn.GameRecord) {
	byEngine := make(map[int]*engineRecord)
	completed := 0
	for i, rec := range finished {
		if rec == nil || rec.Result == "" || i >= len(m.games) {
			continue
		}
		completed++
		g := m.games[i]
		white, black := ensure(byEngine, g.WhiteEngineID), ensure(byEngine, g.BlackEngineID)
		switch rec.Result {
		case "1-0":
			white.wins++
			black.losses++
		case "0-1":
			black.wins++
			white.losses++
		case "1/2-1/2":
			white.draws++
			black.draws++
		}
	}

	ids := make([]int, 0, len(byEngine))
	for id := range byEngine {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	entries := log.Info().Int("completed", completed).Int("total", len(m.games))
	for _, id := range ids {
		r := byEngine[id]
		entries = entries.Str(fmt.Sprintf("engine%d", id), fmt.Sprintf("%d-%d-%d", r.wins, r.draws, r.losses))
	}
	entries.Msg("standings")
}

func (m *monitor) printFinalStandings() {
	m.printStandings(m.pool.SnapshotFinished())
}

func ensure(m map[int]*engineRecord, id int) *engineRecord {
	if r, ok := m[id]; ok {
		return r
	}
	r := &engineRecord{}
	m[id] = r
	return r
}

func tagValue(rec ptn.GameRecord, key string) string {
	for _, t := range rec.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func convertResult(s string) stats.GameResult {
	switch s {
	case "1-0":
		return stats.WhiteWin
	case "0-1":
		return stats.BlackWin
	default:
		return stats.Draw
	}
}

func sprtDecisionString(d stats.Decision) string {
	switch d {
	case stats.AcceptH1:
		return "accept (second engine is stronger)"
	case stats.RejectH1:
		return "reject (second engine is not stronger)"
	default:
		return "continue"
	}
}
