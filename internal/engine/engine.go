// Package engine manages a TEI-speaking engine subprocess: spawning it,
// running the tei/teiok/isready/readyok handshake, sending position/go/stop/
// setoption commands, and shutting it down gracefully or by force.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/racetrack/internal/tei"
)

// ErrStdinWrite wraps any failure writing a command to the engine's stdin
// pipe — a write-side fault, as opposed to a read-side EOF/crash. Callers
// distinguish the two with errors.Is, since a fatal write error and a
// crash are handled differently (see internal/driver).
var ErrStdinWrite = errors.New("engine: stdin write failed")

// ErrUnsupportedOption is returned by ApplyOptions (and so by Start, during
// handshake) when a desired option isn't declared by the engine or its
// value falls outside the declared range. The tournament aborts before any
// game is played rather than sending a setoption the engine can't honor.
var ErrUnsupportedOption = errors.New("engine: unsupported option")

// Config names one engine's executable, declared TEI options, and the
// half-komi value every game against it is played with.
type Config struct {
	ID       string
	Path     string
	Args     []string
	Options  map[string]string
	HalfKomi int
}

// Identity is the "id name"/"id author"/"protocol_version" triple an engine
// reports during handshake.
type Identity struct {
	Name            string
	Author          string
	ProtocolVersion int
}

// Engine wraps a running TEI engine subprocess.
type Engine struct {
	cfg Config

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
	exited chan struct{}

	Identity Identity
	Options  []tei.Option
	current  map[string]string
}

// New creates an Engine bound to cfg. The process is not started until
// Start is called.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, current: make(map[string]string)}
}

// Start spawns the subprocess and runs the tei/teiok + setoption + isready/
// readyok handshake. A failure here is always a StartupError to the caller.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.spawn(ctx); err != nil {
		return fmt.Errorf("engine %s: spawn: %w", e.cfg.ID, err)
	}
	if err := e.handshake(ctx); err != nil {
		e.Close()
		return fmt.Errorf("engine %s: handshake: %w", e.cfg.ID, err)
	}
	log.Info().Str("engine", e.cfg.ID).Str("name", e.Identity.Name).Msg("engine ready")
	return nil
}

func (e *Engine) spawn(ctx context.Context) error {
	e.cmd = exec.CommandContext(ctx, e.cfg.Path, e.cfg.Args...)

	var err error
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	e.scanner = bufio.NewScanner(stdout)
	e.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	e.exited = make(chan struct{})

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	go func() {
		e.cmd.Wait()
		close(e.exited)
	}()
	return nil
}

func (e *Engine) handshake(ctx context.Context) error {
	if err := e.send("tei"); err != nil {
		return err
	}
	if err := e.readHandshake(ctx); err != nil {
		return fmt.Errorf("waiting for teiok: %w", err)
	}
	e.ensureHalfKomiOption()

	desired := make(map[string]string, len(e.cfg.Options)+1)
	for name, value := range e.cfg.Options {
		desired[name] = value
	}
	desired["HalfKomi"] = strconv.Itoa(e.cfg.HalfKomi)
	if err := e.ApplyOptions(desired); err != nil {
		return err
	}

	if err := e.send("isready"); err != nil {
		return err
	}
	if err := e.readUntil(ctx, "readyok"); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}
	return nil
}

// ensureHalfKomiOption gives every engine a HalfKomi option to validate
// against, even one that never declared it during handshake: such an
// engine is assumed to only support zero komi, so its range is fixed at
// [0,0] and a nonzero desired HalfKomi will fail validation rather than be
// silently sent on the wire.
func (e *Engine) ensureHalfKomiOption() {
	if _, ok := e.declaredOption("HalfKomi"); ok {
		return
	}
	opt := tei.Option{Name: "HalfKomi", Type: tei.OptionSpin, Default: "0", Min: "0", Max: "0"}
	e.Options = append(e.Options, opt)
	e.current[opt.Name] = opt.Default
}

func (e *Engine) declaredOption(name string) (tei.Option, bool) {
	for _, opt := range e.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return tei.Option{}, false
}

// ApplyOptions validates every desired name/value pair against the
// engine's declared options before sending anything: each name must be
// declared, and each value must fall within its declared type's range
// (check: true/false; spin: within min/max; combo: one of the declared
// vars). The first failure aborts with ErrUnsupportedOption and nothing is
// sent. Once every pair validates, setoption is emitted only for values
// that differ from the currently stored one (buttons are always re-sent,
// since they carry no persistent state), in sorted name order for a
// deterministic wire trace.
func (e *Engine) ApplyOptions(desired map[string]string) error {
	if len(desired) == 0 {
		return nil
	}
	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make(map[string]tei.Option, len(names))
	for _, name := range names {
		opt, ok := e.declaredOption(name)
		if !ok {
			return fmt.Errorf("engine %s: %w: %q not declared", e.cfg.ID, ErrUnsupportedOption, name)
		}
		if err := validateOptionValue(opt, desired[name]); err != nil {
			return fmt.Errorf("engine %s: %w: %v", e.cfg.ID, ErrUnsupportedOption, err)
		}
		opts[name] = opt
	}

	for _, name := range names {
		value := desired[name]
		if opts[name].Type != tei.OptionButton && e.current[name] == value {
			continue
		}
		if err := e.SetOption(name, value); err != nil {
			return err
		}
		e.current[name] = value
	}
	return nil
}

func validateOptionValue(opt tei.Option, value string) error {
	switch opt.Type {
	case tei.OptionCheck:
		if value != "true" && value != "false" {
			return fmt.Errorf("%q is not true/false for check option %q", value, opt.Name)
		}
	case tei.OptionSpin:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%q is not an integer for spin option %q", value, opt.Name)
		}
		if opt.Min != "" {
			if min, err := strconv.Atoi(opt.Min); err == nil && n < min {
				return fmt.Errorf("%d is below min %d for option %q", n, min, opt.Name)
			}
		}
		if opt.Max != "" {
			if max, err := strconv.Atoi(opt.Max); err == nil && n > max {
				return fmt.Errorf("%d is above max %d for option %q", n, max, opt.Name)
			}
		}
	case tei.OptionCombo:
		if len(opt.Vars) > 0 && !containsString(opt.Vars, value) {
			return fmt.Errorf("%q is not a declared value of combo option %q", value, opt.Name)
		}
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (e *Engine) readHandshake(ctx context.Context) error {
	ch := make(chan error, 1)
	go func() {
		for e.scanner.Scan() {
			line := e.scanner.Text()
			switch {
			case strings.HasPrefix(line, "id name "):
				e.Identity.Name = strings.TrimPrefix(line, "id name ")
			case strings.HasPrefix(line, "id author "):
				e.Identity.Author = strings.TrimPrefix(line, "id author ")
			case strings.HasPrefix(line, "option "):
				opt, err := tei.ParseOption(line)
				if err != nil {
					log.Warn().Str("engine", e.cfg.ID).Str("line", line).Err(err).Msg("malformed option line")
					continue
				}
				e.Options = append(e.Options, opt)
				e.current[opt.Name] = opt.Default
			case line == "teiok":
				ch <- nil
				return
			}
		}
		ch <- e.scanErr()
	}()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	}
}

func (e *Engine) scanErr() error {
	if err := e.scanner.Err(); err != nil {
		return fmt.Errorf("scanner: %w", err)
	}
	return fmt.Errorf("engine closed stdout unexpectedly")
}

// NewGame sends "teinewgame <size>".
func (e *Engine) NewGame(size int) error {
	return e.send(fmt.Sprintf("teinewgame %d", size))
}

// SetOption sends a "setoption" command.
func (e *Engine) SetOption(name, value string) error {
	if value != "" {
		return e.send(fmt.Sprintf("setoption name %s value %s", name, value))
	}
	return e.send(fmt.Sprintf("setoption name %s", name))
}

// Position sends "position <startpos|tps <FEN>> moves <m1> <m2> ...",
// where start is the caller's already-formed "startpos" or "tps <FEN>"
// token and moves is the full long-algebraic move list to replay from it —
// the opening's forced prefix followed by every move played so far.
func (e *Engine) Position(start string, moves []string) error {
	cmd := "position " + start + " moves"
	if len(moves) > 0 {
		cmd += " " + strings.Join(moves, " ")
	}
	return e.send(cmd)
}

// IsReady sends "isready" and blocks for "readyok".
func (e *Engine) IsReady(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	return e.readUntil(ctx, "readyok")
}

// GoParams configures the search constraints of a "go" command.
type GoParams struct {
	WTime, BTime time.Duration
	WInc, BInc   time.Duration
}

func (p GoParams) String() string {
	return fmt.Sprintf("wtime %d btime %d winc %d binc %d",
		p.WTime.Milliseconds(), p.BTime.Milliseconds(), p.WInc.Milliseconds(), p.BInc.Milliseconds())
}

// SearchResult is everything gathered from one "go" command.
type SearchResult struct {
	BestMove string
	Ponder   string
	Infos    []tei.Info
}

// Go sends "go <params>" and reads info lines until bestmove. If ctx is
// canceled first, it sends "stop" and gives the engine a 2-second grace
// period to respond before reporting a protocol error.
func (e *Engine) Go(ctx context.Context, params GoParams) (SearchResult, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return SearchResult{}, fmt.Errorf("engine %s: closed", e.cfg.ID)
	}
	if !e.IsAlive() {
		return SearchResult{}, fmt.Errorf("engine %s: process not running", e.cfg.ID)
	}
	if err := e.send("go " + params.String()); err != nil {
		return SearchResult{}, err
	}
	return e.readSearchResult(ctx)
}

func (e *Engine) readSearchResult(ctx context.Context) (SearchResult, error) {
	type outcome struct {
		sr  SearchResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		var sr SearchResult
		for e.scanner.Scan() {
			line := e.scanner.Text()
			if strings.HasPrefix(line, "bestmove ") {
				fields := strings.Fields(strings.TrimPrefix(line, "bestmove "))
				if len(fields) > 0 {
					sr.BestMove = fields[0]
				}
				if len(fields) >= 3 && fields[1] == "ponder" {
					sr.Ponder = fields[2]
				}
				ch <- outcome{sr: sr}
				return
			}
			if strings.HasPrefix(line, "info ") {
				info, err := tei.ParseInfo(line)
				if err != nil {
					log.Debug().Str("engine", e.cfg.ID).Str("line", line).Err(err).Msg("unparsed info line")
					continue
				}
				sr.Infos = append(sr.Infos, info)
			}
		}
		ch <- outcome{err: e.scanErr()}
	}()

	select {
	case o := <-ch:
		return o.sr, o.err
	case <-ctx.Done():
		e.send("stop")
		select {
		case o := <-ch:
			return o.sr, o.err
		case <-time.After(2 * time.Second):
			return SearchResult{}, fmt.Errorf("engine %s: did not respond to stop within 2s", e.cfg.ID)
		}
	}
}

func (e *Engine) readUntil(ctx context.Context, expected string) error {
	ch := make(chan error, 1)
	go func() {
		for e.scanner.Scan() {
			if e.scanner.Text() == expected {
				ch <- nil
				return
			}
		}
		ch <- e.scanErr()
	}()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context canceled waiting for %q: %w", expected, ctx.Err())
	}
}

func (e *Engine) send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.stdin == nil {
		return nil
	}
	if _, err := fmt.Fprintf(e.stdin, "%s\n", line); err != nil {
		return fmt.Errorf("%w: engine %s: %v", ErrStdinWrite, e.cfg.ID, err)
	}
	return nil
}

// IsAlive reports whether the subprocess is still running.
func (e *Engine) IsAlive() bool {
	if e.exited == nil {
		return false
	}
	select {
	case <-e.exited:
		return false
	default:
		return true
	}
}

// Close sends "quit", closes stdin, and waits up to 3 seconds for the
// process to exit before killing it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.stdin != nil {
		fmt.Fprintf(e.stdin, "quit\n")
	}
	e.closed = true
	e.mu.Unlock()

	if e.stdin != nil {
		e.stdin.Close()
	}
	if e.exited != nil {
		select {
		case <-e.exited:
		case <-time.After(3 * time.Second):
			log.Warn().Str("engine", e.cfg.ID).Msg("engine did not exit within 3s, killing")
			if e.cmd != nil && e.cmd.Process != nil {
				e.cmd.Process.Kill()
			}
			<-e.exited
		}
	}
	return nil
}

// Restart closes and respawns the engine from scratch, used after a crash
// forfeits a game and the next scheduled game needs a fresh process.
func (e *Engine) Restart(ctx context.Context) error {
	e.Close()
	fresh := New(e.cfg)
	if err := fresh.Start(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.cmd = fresh.cmd
	e.stdin = fresh.stdin
	e.scanner = fresh.scanner
	e.closed = fresh.closed
	e.exited = fresh.exited
	e.Identity = fresh.Identity
	e.Options = fresh.Options
	e.mu.Unlock()
	return nil
}
