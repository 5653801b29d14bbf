package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/registry"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
	"github.com/ikeepcalm/catwalk-sub000/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, mem *store.Memory) (*Gateway, *registry.Registry) {
	t.Helper()
	logger := testLogger()
	self := &domain.Worker{ID: "coordinator", Kind: domain.KindCoordinator}
	reg := registry.New(mem, self, logger, registry.Options{
		LivenessWindow: 90 * time.Second,
	})
	gw := New(mem, reg, logger, Options{
		PollInterval: 20 * time.Millisecond,
	})
	return gw, reg
}

func registerOnlineWorker(t *testing.T, reg *registry.Registry, id string) {
	t.Helper()
	err := reg.RegisterWorker(context.Background(), &domain.Worker{
		ID:   id,
		Kind: domain.KindWorker,
	})
	if err != nil {
		t.Fatalf("register worker %s: %v", id, err)
	}
}

// Round trip: the worker picks the request up within one poll interval
// and the coordinator's call mirrors the worker's response.
func TestProxyRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)
	registerOnlineWorker(t, reg, "alpha")

	listener := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "pong")
	}))
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := worker.New(mem, "alpha", listener.URL, testLogger(), worker.Options{
		PollInterval: 20 * time.Millisecond,
	})
	go proc.Start(ctx)
	go gw.RunResponsePoll(ctx)

	res := gw.Proxy(ctx, "alpha", "/ping", Call{Method: http.MethodGet})
	if !res.OK {
		t.Fatalf("proxy failed: %d %s", res.FailStatus, res.FailMessage)
	}
	if res.StatusCode != http.StatusOK || res.Body != "pong" {
		t.Errorf("got %d %q, want 200 \"pong\"", res.StatusCode, res.Body)
	}
	if res.ContentType != "text/plain" {
		t.Errorf("content type: got %q, want text/plain", res.ContentType)
	}
	if gw.PendingCount() != 0 {
		t.Errorf("expected no pending futures after delivery, got %d", gw.PendingCount())
	}
}

// A stale heartbeat fails the call immediately and writes no request row.
func TestProxyStaleWorkerUnavailable(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)

	mem.SetWorker(&domain.Worker{
		ID:            "beta",
		Kind:          domain.KindWorker,
		Status:        domain.WorkerOnline,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
	})
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	start := time.Now()
	res := gw.Proxy(context.Background(), "beta", "/ping", Call{Method: http.MethodGet})
	if res.OK || res.FailStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unavailable check took %v, want immediate", elapsed)
	}

	pending, err := mem.ListPendingRequests(context.Background(), "beta", 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no request row for unavailable target, got %d", len(pending))
	}
}

func TestProxyUnknownWorkerUnavailable(t *testing.T) {
	mem := store.NewMemory()
	gw, _ := newTestGateway(t, mem)

	res := gw.Proxy(context.Background(), "ghost", "/ping", Call{Method: http.MethodGet})
	if res.OK || res.FailStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unknown worker, got %+v", res)
	}
}

// A failing local execution surfaces the worker's synthetic 500, not a
// gateway timeout.
func TestProxyRemoteExecutionFailure(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)
	registerOnlineWorker(t, reg, "gamma")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing listens here; every local call fails.
	proc := worker.New(mem, "gamma", "http://127.0.0.1:1", testLogger(), worker.Options{
		PollInterval: 20 * time.Millisecond,
	})
	go proc.Start(ctx)
	go gw.RunResponsePoll(ctx)

	res := gw.Proxy(ctx, "gamma", "/boom", Call{Method: http.MethodGet, TimeoutSeconds: 5})
	if !res.OK {
		t.Fatalf("expected a delivered synthetic response, got failure %d %s",
			res.FailStatus, res.FailMessage)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", res.StatusCode)
	}
	if !strings.Contains(res.Body, "error") {
		t.Errorf("expected error body, got %q", res.Body)
	}
}

// With no worker polling, the call times out locally, the future is
// removed, and the stored row is left untouched.
func TestProxyTimeout(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)
	registerOnlineWorker(t, reg, "delta")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.RunResponsePoll(ctx)

	start := time.Now()
	res := gw.Proxy(ctx, "delta", "/slow", Call{Method: http.MethodGet, TimeoutSeconds: 1})
	elapsed := time.Since(start)

	if res.OK || res.FailStatus != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %+v", res)
	}
	if elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("timeout fired after %v, want ~1s", elapsed)
	}
	if gw.PendingCount() != 0 {
		t.Errorf("expected pending future to be removed, got %d", gw.PendingCount())
	}

	pending, err := mem.ListPendingRequests(context.Background(), "delta", 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the stored row to stay pending, got %d rows", len(pending))
	}
}

func TestProxyValidation(t *testing.T) {
	mem := store.NewMemory()
	gw, _ := newTestGateway(t, mem)

	for _, tc := range []struct {
		worker, path string
	}{
		{"", "/ping"},
		{"alpha", ""},
		{"alpha", "no-leading-slash"},
	} {
		res := gw.Proxy(context.Background(), tc.worker, tc.path, Call{Method: http.MethodGet})
		if res.OK || res.FailStatus != http.StatusBadRequest {
			t.Errorf("worker=%q path=%q: expected 400, got %+v", tc.worker, tc.path, res)
		}
	}
}

// Full HTTP path: route registered through an addon announcement,
// request proxied through the handler, response rendered back.
func TestHandlerProxyRoute(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)
	registerOnlineWorker(t, reg, "alpha")

	err := reg.RegisterAddon(context.Background(), &domain.Addon{
		WorkerID: "alpha",
		Name:     "core",
		Version:  "1.0.0",
		Enabled:  true,
		Endpoints: []domain.EndpointDef{
			{Path: "/ping", Methods: []string{http.MethodGet}},
		},
	})
	if err != nil {
		t.Fatalf("register addon: %v", err)
	}

	listener := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "pong")
	}))
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := worker.New(mem, "alpha", listener.URL, testLogger(), worker.Options{
		PollInterval: 20 * time.Millisecond,
	})
	go proc.Start(ctx)
	go gw.RunResponsePoll(ctx)

	front := httptest.NewServer(gw.Handler())
	defer front.Close()

	resp, err := http.Get(front.URL + "/servers/alpha/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "pong" {
		t.Errorf("got %d %q, want 200 \"pong\"", resp.StatusCode, string(body))
	}

	// Unregistered endpoint is rejected before any enqueue.
	resp2, err := http.Get(front.URL + "/servers/alpha/secret")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unregistered route: got %d, want 404", resp2.StatusCode)
	}
}

func TestHandlerManagementSurface(t *testing.T) {
	mem := store.NewMemory()
	gw, reg := newTestGateway(t, mem)
	registerOnlineWorker(t, reg, "alpha")

	front := httptest.NewServer(gw.Handler())
	defer front.Close()

	for _, path := range []string{
		"/gateway/workers",
		"/gateway/addons",
		"/gateway/workers/alpha/addons",
		"/gateway/health",
	} {
		resp, err := http.Get(front.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, resp.StatusCode)
		}
	}
}
