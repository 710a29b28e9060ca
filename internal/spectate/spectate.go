// Package spectate serves a live view of in-progress games: a polling
// JSON endpoint and a pushed WebSocket feed, both gated by a short-lived
// viewer token. It is optional — a tournament runs identically whether or
// not anyone is watching it.
package spectate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/racetrack/internal/logger"
	"github.com/freeeve/racetrack/internal/ptn"
)

// GameState is the snapshot of one game as the hub holds it; cmd/racetrack's
// monitor stores one each time a game finishes.
type GameState struct {
	Round      int              `json:"round"`
	WhiteName  string           `json:"white"`
	BlackName  string           `json:"black"`
	Moves      []ptn.MoveRecord `json:"moves"`
	LastInfo   string           `json:"last_info"`
	WhiteClock int64            `json:"white_clock_ms"`
	BlackClock int64            `json:"black_clock_ms"`
	Result     string           `json:"result,omitempty"`
}

// Hub holds the most recent GameState per round and fans updates out to
// any subscribed WebSocket connections, keyed by round number.
type Hub struct {
	mu          sync.RWMutex
	states      map[int]GameState
	subscribers map[int]map[chan []byte]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		states:      make(map[int]GameState),
		subscribers: make(map[int]map[chan []byte]bool),
	}
}

// Update stores the latest state for a round and pushes it to any
// subscribers, dropping the update for a subscriber whose send buffer is
// full rather than blocking the caller.
func (h *Hub) Update(state GameState) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Error().Int("round", state.Round).Err(err).Msg("spectate: failed to marshal game state")
		return
	}

	h.mu.Lock()
	h.states[state.Round] = state
	subs := h.subscribers[state.Round]
	h.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- data:
		default:
			log.Warn().Int("round", state.Round).Msg("spectate: dropping update, subscriber buffer full")
		}
	}
}

// Snapshot returns the most recently stored state for a round.
func (h *Hub) Snapshot(round int) (GameState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.states[round]
	return s, ok
}

func (h *Hub) subscribe(round int) chan []byte {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if h.subscribers[round] == nil {
		h.subscribers[round] = make(map[chan []byte]bool)
	}
	h.subscribers[round][ch] = true
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(round int, ch chan []byte) {
	h.mu.Lock()
	delete(h.subscribers[round], ch)
	if len(h.subscribers[round]) == 0 {
		delete(h.subscribers, round)
	}
	h.mu.Unlock()
	close(ch)
}

// viewerClaims is the payload of a spectator viewer token: just the
// registered claims, with a random jti so tokens can be told apart in logs.
type viewerClaims struct {
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned by Auth.validate for any malformed, expired,
// or wrongly-signed token.
var ErrInvalidToken = errors.New("spectate: invalid or expired viewer token")

// Auth mints and validates the short-lived HMAC-signed viewer tokens that
// gate the spectator feed.
type Auth struct {
	secret []byte
}

// NewAuth creates an Auth with the given signing secret.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// IssueViewerToken mints a token valid for ttl, printed to the log at
// tournament start for whoever wants to watch.
func (a *Auth) IssueViewerToken(ttl time.Duration) (string, error) {
	claims := viewerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        logger.NewRequestID(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) validate(tokenStr string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &viewerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Server serves the spectator feed over HTTP and WebSocket.
type Server struct {
	addr     string
	hub      *Hub
	auth     *Auth
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer creates a Server bound to addr, unstarted.
func NewServer(addr string, hub *Hub, auth *Auth) *Server {
	s := &Server{
		addr: addr,
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/games/", s.handleGame)
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving the spectator feed until the server is
// closed or it fails to bind. Callers should run it in its own goroutine
// and treat a bind error as a warning, not a fatal startup error.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) authorize(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		return false
	}
	return s.auth.validate(token) == nil
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}
	round, err := parseRound(r.URL.Path, "/games/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, ok := s.hub.Snapshot(round)
	if !ok {
		http.Error(w, "no such round in progress", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}
	round, err := strconv.Atoi(r.URL.Query().Get("round"))
	if err != nil {
		http.Error(w, "round query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("spectate: websocket upgrade failed")
		return
	}
	defer conn.Close()

	if state, ok := s.hub.Snapshot(round); ok {
		if data, err := json.Marshal(state); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	ch := s.hub.subscribe(round)
	defer s.hub.unsubscribe(round, ch)

	for data := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func parseRound(path, prefix string) (int, error) {
	s := strings.TrimPrefix(path, prefix)
	s = strings.Trim(s, "/")
	round, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("spectate: malformed round in path %q", path)
	}
	return round, nil
}
