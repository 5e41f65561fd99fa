package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/core"
	"github.com/teamhub/callwire/internal/domain"
)

type fakeChannel struct {
	mu     sync.Mutex
	frames map[domain.GroupID][]core.Frame
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{frames: make(map[domain.GroupID][]core.Frame)}
}

func (f *fakeChannel) Subscribe(domain.GroupID, core.SessionID, core.SignalConnection)       {}
func (f *fakeChannel) Unsubscribe(domain.GroupID, core.SessionID)                            {}
func (f *fakeChannel) UnsubscribeConn(domain.GroupID, core.SessionID, core.SignalConnection) {}
func (f *fakeChannel) SubscriberCount(domain.GroupID) int                                    { return 0 }

func (f *fakeChannel) Publish(group domain.GroupID, data core.Frame) core.PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[group] = append(f.frames[group], data)
	return core.PublishResult{SentTo: 1}
}

func (f *fakeChannel) published(group domain.GroupID) []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Frame(nil), f.frames[group]...)
}

// fakeSFU counts control-plane hits per endpoint.
type fakeSFU struct {
	mu       sync.Mutex
	hits     map[string]int
	failNext bool
	nextID   int
}

func newFakeSFU() *fakeSFU {
	return &fakeSFU{hits: make(map[string]int)}
}

func (s *fakeSFU) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/create-router", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, func() any { return map[string]string{"routerId": s.id("router")} })
	})
	mux.HandleFunc("/create-transport", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, func() any { return map[string]any{"id": s.id("transport")} })
	})
	mux.HandleFunc("/create-producer", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, func() any { return map[string]string{"producerId": s.id("producer")} })
	})
	mux.HandleFunc("/router-rtp", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, func() any { return map[string]any{"codecs": []string{"opus", "vp8"}} })
	})
	return mux
}

func (s *fakeSFU) serve(w http.ResponseWriter, body func() any) {
	s.mu.Lock()
	fail := s.failNext
	s.failNext = false
	s.mu.Unlock()
	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(body())
}

func (s *fakeSFU) id(kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("%s-%d", kind, s.nextID)
}

func (s *fakeSFU) countOf(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *fakeSFU) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func newTestBridge(t *testing.T) (*MediaUnitBridge, *fakeSFU, *fakeChannel) {
	t.Helper()
	f := newFakeSFU()
	srv := httptest.NewServer(f.counting(f.handler()))
	t.Cleanup(srv.Close)

	ch := newFakeChannel()
	relay := app.NewSignalRelay(ch)
	b := NewMediaUnitBridge(NewClient(srv.URL, time.Second), relay)
	return b, f, ch
}

func TestBridge_EnsureRouterIsLazyAndCached(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	if f.countOf("/create-router") != 0 {
		t.Fatalf("router must not be provisioned before first request")
	}

	id1, err := b.EnsureRouter(ctx, "g1")
	if err != nil {
		t.Fatalf("ensure router: %v", err)
	}
	id2, err := b.EnsureRouter(ctx, "g1")
	if err != nil {
		t.Fatalf("ensure router again: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected cached router id, got %q then %q", id1, id2)
	}
	if got := f.countOf("/create-router"); got != 1 {
		t.Fatalf("expected one SFU call, got %d", got)
	}
}

func TestBridge_CreateTransportIdempotent(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	td1, err := b.CreateTransport(ctx, "alice", "g1", DirectionSend)
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}
	td2, err := b.CreateTransport(ctx, "alice", "g1", DirectionSend)
	if err != nil {
		t.Fatalf("create transport again: %v", err)
	}
	if td1.ID != td2.ID {
		t.Fatalf("expected identical descriptor, got %q then %q", td1.ID, td2.ID)
	}
	if got := f.countOf("/create-transport"); got != 1 {
		t.Fatalf("expected one transport call, got %d", got)
	}

	// A different direction is a different binding.
	td3, err := b.CreateTransport(ctx, "alice", "g1", DirectionRecv)
	if err != nil {
		t.Fatalf("create recv transport: %v", err)
	}
	if td3.ID == td1.ID {
		t.Fatalf("recv transport must not reuse the send descriptor")
	}
}

func TestBridge_CreateProducerRequiresSendTransport(t *testing.T) {
	b, _, _ := newTestBridge(t)

	_, err := b.CreateProducer(context.Background(), "alice", "g1", KindAudio, nil)
	if !errors.Is(err, ErrNoSendTransport) {
		t.Fatalf("expected ErrNoSendTransport, got %v", err)
	}
}

func TestBridge_CreateProducerIdempotentAndAnnounced(t *testing.T) {
	b, f, ch := newTestBridge(t)
	ctx := context.Background()

	if _, err := b.CreateTransport(ctx, "alice", "g1", DirectionSend); err != nil {
		t.Fatalf("create transport: %v", err)
	}

	id1, err := b.CreateProducer(ctx, "alice", "g1", KindAudio, json.RawMessage(`{"codecs":[]}`))
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}
	id2, err := b.CreateProducer(ctx, "alice", "g1", KindAudio, json.RawMessage(`{"codecs":[]}`))
	if err != nil {
		t.Fatalf("create producer again: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected cached producer id, got %q then %q", id1, id2)
	}
	if got := f.countOf("/create-producer"); got != 1 {
		t.Fatalf("expected one producer call, got %d", got)
	}

	// Exactly one new-producer announcement, on actual creation only.
	frames := ch.published("g1")
	if len(frames) != 1 {
		t.Fatalf("expected one announcement, got %d", len(frames))
	}
	var env domain.SignalEnvelope
	if err := json.Unmarshal(frames[0], &env); err != nil {
		t.Fatalf("announcement did not decode: %v", err)
	}
	if env.Type != "new-producer" || env.GroupID != "g1" || env.Sender != "alice" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var payload struct {
		UserID     string `json:"userId"`
		ProducerID string `json:"producerId"`
		Kind       string `json:"kind"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload did not decode: %v", err)
	}
	if payload.UserID != "alice" || payload.ProducerID != id1 || payload.Kind != "audio" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestBridge_FailureLeavesCacheUntouched(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	f.mu.Lock()
	f.failNext = true
	f.mu.Unlock()

	if _, err := b.EnsureRouter(ctx, "g1"); !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("expected ErrMediaUnavailable, got %v", err)
	}
	if b.HasRouter("g1") {
		t.Fatalf("failed call must not populate the cache")
	}

	// The next attempt retries against the SFU and succeeds.
	if _, err := b.EnsureRouter(ctx, "g1"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := f.countOf("/create-router"); got != 2 {
		t.Fatalf("expected two SFU attempts, got %d", got)
	}
}

func TestBridge_ReleaseGroup(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	if _, err := b.CreateTransport(ctx, "alice", "g1", DirectionSend); err != nil {
		t.Fatalf("create transport: %v", err)
	}
	if _, err := b.CreateProducer(ctx, "alice", "g1", KindAudio, nil); err != nil {
		t.Fatalf("create producer: %v", err)
	}
	if _, err := b.CreateTransport(ctx, "bob", "g2", DirectionSend); err != nil {
		t.Fatalf("create g2 transport: %v", err)
	}

	b.ReleaseGroup("g1")

	if b.HasRouter("g1") {
		t.Fatalf("expected g1 router binding dropped")
	}
	if !b.HasRouter("g2") {
		t.Fatalf("g2 bindings must survive g1 release")
	}

	// Re-provisioning after release issues fresh SFU calls.
	before := f.countOf("/create-router")
	if _, err := b.EnsureRouter(ctx, "g1"); err != nil {
		t.Fatalf("re-provision after release: %v", err)
	}
	if got := f.countOf("/create-router"); got != before+1 {
		t.Fatalf("expected a fresh router call, got %d then %d", before, got)
	}

	// Producer must be re-created too: its transport binding is gone.
	if _, err := b.CreateProducer(ctx, "alice", "g1", KindAudio, nil); !errors.Is(err, ErrNoSendTransport) {
		t.Fatalf("expected ErrNoSendTransport after release, got %v", err)
	}
}

func TestBridge_ConcurrentEnsureRouterSingleCall(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := b.EnsureRouter(ctx, "g1")
			if err != nil {
				t.Errorf("ensure router: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if got := f.countOf("/create-router"); got != 1 {
		t.Fatalf("expected one SFU call under contention, got %d", got)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("router ids diverged: %q vs %q", ids[0], ids[i])
		}
	}
}

func TestClient_RouterRTPPassthrough(t *testing.T) {
	b, f, _ := newTestBridge(t)
	ctx := context.Background()

	caps, err := b.RouterRTPCapabilities(ctx)
	if err != nil {
		t.Fatalf("router rtp: %v", err)
	}
	var decoded struct {
		Codecs []string `json:"codecs"`
	}
	if err := json.Unmarshal(caps, &decoded); err != nil {
		t.Fatalf("capabilities did not decode: %v", err)
	}
	if len(decoded.Codecs) != 2 {
		t.Fatalf("unexpected capabilities %+v", decoded)
	}

	// Never cached: every query goes through.
	if _, err := b.RouterRTPCapabilities(ctx); err != nil {
		t.Fatalf("router rtp again: %v", err)
	}
	if got := f.countOf("/router-rtp"); got != 2 {
		t.Fatalf("expected two passthrough calls, got %d", got)
	}
}
