package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	self := &domain.Worker{ID: "self", Kind: domain.KindCoordinator}
	reg := New(mem, self, logger, Options{LivenessWindow: 90 * time.Second})
	return reg, mem
}

func TestAvailable(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	mem.SetWorker(&domain.Worker{
		ID: "fresh", Status: domain.WorkerOnline, LastHeartbeat: now,
	})
	mem.SetWorker(&domain.Worker{
		ID: "stale", Status: domain.WorkerOnline, LastHeartbeat: now.Add(-5 * time.Minute),
	})
	mem.SetWorker(&domain.Worker{
		ID: "offline", Status: domain.WorkerOffline, LastHeartbeat: now,
	})
	mem.SetWorker(&domain.Worker{
		ID: "maintenance", Status: domain.WorkerMaintenance, LastHeartbeat: now,
	})
	if err := reg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	cases := []struct {
		id   string
		want bool
	}{
		{"fresh", true},
		// A stale heartbeat overrides the stored online flag.
		{"stale", false},
		{"offline", false},
		{"maintenance", false},
		{"unknown", false},
	}
	for _, tc := range cases {
		if got := reg.Available(tc.id); got != tc.want {
			t.Errorf("Available(%q): got %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestRegisterSelfAndShutdown(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.RegisterSelf(ctx); err != nil {
		t.Fatalf("register self: %v", err)
	}
	if !reg.Available("self") {
		t.Error("expected self to be available after registration")
	}

	reg.Shutdown(ctx)

	workers, err := mem.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	if len(workers) != 1 || workers[0].Status != domain.WorkerOffline {
		t.Errorf("expected self marked offline, got %+v", workers)
	}
}

func TestRegisterAddonFiresHook(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	var hooked []string
	reg.OnAddon(func(a *domain.Addon) {
		hooked = append(hooked, a.WorkerID+"/"+a.Name)
	})

	addon := &domain.Addon{
		WorkerID: "alpha",
		Name:     "stats",
		Version:  "0.2.0",
		Enabled:  true,
		Endpoints: []domain.EndpointDef{
			{Path: "/stats", Methods: []string{"GET"}},
		},
	}
	if err := reg.RegisterAddon(ctx, addon); err != nil {
		t.Fatalf("register addon: %v", err)
	}

	if len(hooked) != 1 || hooked[0] != "alpha/stats" {
		t.Errorf("hook calls: got %v, want [alpha/stats]", hooked)
	}

	stored, err := mem.ListWorkerAddons(ctx, "alpha")
	if err != nil {
		t.Fatalf("list addons: %v", err)
	}
	if len(stored) != 1 || stored[0].Version != "0.2.0" {
		t.Errorf("stored addon: got %+v", stored)
	}

	// Upsert with a new version replaces the cache entry in place.
	addon.Version = "0.3.0"
	if err := reg.RegisterAddon(ctx, addon); err != nil {
		t.Fatalf("re-register addon: %v", err)
	}
	cached := reg.WorkerAddons("alpha")
	if len(cached) != 1 || cached[0].Version != "0.3.0" {
		t.Errorf("cached addon after upsert: got %+v", cached)
	}
}

func TestRefreshFiresHookPerAddon(t *testing.T) {
	reg, mem := newTestRegistry(t)
	ctx := context.Background()

	for _, a := range []*domain.Addon{
		{WorkerID: "alpha", Name: "core", Enabled: true},
		{WorkerID: "beta", Name: "world", Enabled: true},
	} {
		if err := mem.UpsertAddon(ctx, a); err != nil {
			t.Fatalf("seed addon: %v", err)
		}
	}

	var hooked int
	reg.OnAddon(func(a *domain.Addon) { hooked++ })

	if err := reg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if hooked != 2 {
		t.Errorf("hook calls after refresh: got %d, want 2", hooked)
	}
	if len(reg.Addons()) != 2 {
		t.Errorf("cached addons: got %d, want 2", len(reg.Addons()))
	}
}
