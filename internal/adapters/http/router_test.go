package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teamhub/callwire/internal/adapters/signal"
	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/app/sfu"
	"github.com/teamhub/callwire/internal/config"
	"github.com/teamhub/callwire/internal/core"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.SessionRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sfuSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/router-rtp" {
			_, _ = w.Write([]byte(`{"codecs":["opus"]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(sfuSrv.Close)

	clock := app.SystemClock()
	channel := core.NewGroupChannel()
	registry := app.NewSessionRegistry(clock)
	relay := app.NewSignalRelay(channel)
	bridge := sfu.NewMediaUnitBridge(sfu.NewClient(sfuSrv.URL, time.Second), relay)
	coordinator := app.NewCallCoordinator(registry, channel, bridge, clock)

	ctl := signal.NewController(&signal.Services{
		Calls:    coordinator,
		Relay:    relay,
		Presence: app.NewPresenceTracker(clock, time.Minute),
		Users:    app.NewUserRegistry(),
		Bridge:   bridge,
		Channel:  channel,
	}, nil)

	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: t.TempDir()}
	r := SetupRouter(context.Background(), cfg, ctl, registry, bridge)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func TestCallStatus_NoCall(t *testing.T) {
	srv, _ := newTestServer(t)

	var resp struct {
		Active       bool     `json:"active"`
		Initiator    *string  `json:"initiator"`
		Participants []string `json:"participants"`
	}
	if code := getJSON(t, srv.URL+"/api/call-status?groupId=g1", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Active || resp.Initiator != nil || len(resp.Participants) != 0 {
		t.Fatalf("expected inactive status, got %+v", resp)
	}
}

func TestCallStatus_ActiveCall(t *testing.T) {
	srv, registry := newTestServer(t)
	registry.CreateIfAbsent("g1", "alice", "Alice")
	registry.AddParticipant("g1", "bob")

	var resp struct {
		Active       bool     `json:"active"`
		Initiator    string   `json:"initiator"`
		Participants []string `json:"participants"`
	}
	getJSON(t, srv.URL+"/api/call-status?groupId=g1", &resp)
	if !resp.Active || resp.Initiator != "alice" || len(resp.Participants) != 2 {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestCallStatus_MissingGroupParam(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/call-status", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestActiveCallList(t *testing.T) {
	srv, registry := newTestServer(t)
	registry.CreateIfAbsent("g1", "alice", "Alice")
	registry.CreateIfAbsent("g2", "bob", "Bob")

	var calls []json.RawMessage
	getJSON(t, srv.URL+"/api/calls", &calls)
	if len(calls) != 2 {
		t.Fatalf("expected two active calls, got %d", len(calls))
	}
}

func TestRouterRTPPassthrough(t *testing.T) {
	srv, _ := newTestServer(t)

	var resp struct {
		Codecs []string `json:"codecs"`
	}
	if code := getJSON(t, srv.URL+"/api/router-rtp", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(resp.Codecs) != 1 || resp.Codecs[0] != "opus" {
		t.Fatalf("unexpected capabilities %+v", resp)
	}
}
