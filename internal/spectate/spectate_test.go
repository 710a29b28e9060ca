package spectate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestIssueAndValidateViewerToken(t *testing.T) {
	auth := NewAuth("test-secret-key-123")
	token, err := auth.IssueViewerToken(time.Minute)
	if err != nil {
		t.Fatalf("IssueViewerToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if err := auth.validate(token); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a1 := NewAuth("secret-one")
	a2 := NewAuth("secret-two")

	token, err := a1.IssueViewerToken(time.Minute)
	if err != nil {
		t.Fatalf("IssueViewerToken: %v", err)
	}
	if err := a2.validate(token); err == nil {
		t.Error("expected validation to fail with wrong secret")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	auth := NewAuth("test-secret")
	token, err := auth.IssueViewerToken(-time.Second)
	if err != nil {
		t.Fatalf("IssueViewerToken: %v", err)
	}
	if err := auth.validate(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	auth := NewAuth("test-secret")
	if err := auth.validate("not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestHandleGameRequiresToken(t *testing.T) {
	hub := NewHub()
	hub.Update(GameState{Round: 1, WhiteName: "alpha", BlackName: "beta"})
	srv := NewServer("", hub, NewAuth("s3cret"))
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/games/1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleGameReturnsSnapshot(t *testing.T) {
	auth := NewAuth("s3cret")
	hub := NewHub()
	hub.Update(GameState{Round: 3, WhiteName: "alpha", BlackName: "beta", LastInfo: "cp 40 depth 8"})
	srv := NewServer("", hub, auth)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	token, err := auth.IssueViewerToken(time.Minute)
	if err != nil {
		t.Fatalf("IssueViewerToken: %v", err)
	}

	resp, err := http.Get(ts.URL + "/games/3?token=" + url.QueryEscape(token))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got GameState
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Round != 3 || got.WhiteName != "alpha" || got.BlackName != "beta" {
		t.Errorf("got = %+v", got)
	}
}

func TestHandleGameUnknownRoundNotFound(t *testing.T) {
	auth := NewAuth("s3cret")
	hub := NewHub()
	srv := NewServer("", hub, auth)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	token, _ := auth.IssueViewerToken(time.Minute)
	resp, err := http.Get(ts.URL + "/games/9?token=" + url.QueryEscape(token))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleWSPushesUpdates(t *testing.T) {
	auth := NewAuth("s3cret")
	hub := NewHub()
	hub.Update(GameState{Round: 1, WhiteName: "alpha", BlackName: "beta"})
	srv := NewServer("", hub, auth)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	token, _ := auth.IssueViewerToken(time.Minute)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?round=1&token=" + url.QueryEscape(token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First message is the current snapshot sent on connect.
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	var initial GameState
	if err := json.Unmarshal(data, &initial); err != nil {
		t.Fatalf("unmarshal initial: %v", err)
	}
	if initial.WhiteName != "alpha" {
		t.Errorf("initial.WhiteName = %q, want alpha", initial.WhiteName)
	}

	hub.Update(GameState{Round: 1, WhiteName: "alpha", BlackName: "beta", LastInfo: "cp 12 depth 4"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed update: %v", err)
	}
	var pushed GameState
	if err := json.Unmarshal(data, &pushed); err != nil {
		t.Fatalf("unmarshal pushed: %v", err)
	}
	if pushed.LastInfo != "cp 12 depth 4" {
		t.Errorf("pushed.LastInfo = %q, want %q", pushed.LastInfo, "cp 12 depth 4")
	}
}
