// Package registry tracks cluster workers and the addon endpoints they
// expose. It keeps an in-memory cache over the durable worker and addon
// tables so availability checks and route lookups avoid a store
// round-trip per call.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRefreshInterval   = 2 * time.Minute
	// DefaultLivenessWindow is three missed heartbeats. Past it a worker
	// is treated as unavailable regardless of its stored status.
	DefaultLivenessWindow = 90 * time.Second
)

// LoadFunc reports the node's current and maximum load gauges for
// heartbeat updates.
type LoadFunc func() (current, max int)

type Registry struct {
	store  store.Store
	logger *slog.Logger
	self   *domain.Worker

	heartbeatInterval time.Duration
	refreshInterval   time.Duration
	livenessWindow    time.Duration
	loadFn            LoadFunc

	mu      sync.RWMutex
	workers map[string]*domain.Worker
	addons  map[string][]*domain.Addon
	onAddon func(a *domain.Addon)
}

// Options tunes the background loops. Zero values take the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	RefreshInterval   time.Duration
	LivenessWindow    time.Duration
	Load              LoadFunc
}

func New(st store.Store, self *domain.Worker, logger *slog.Logger, opts Options) *Registry {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = DefaultLivenessWindow
	}
	if opts.Load == nil {
		opts.Load = func() (int, int) { return 0, 0 }
	}
	return &Registry{
		store:             st,
		logger:            logger,
		self:              self,
		heartbeatInterval: opts.HeartbeatInterval,
		refreshInterval:   opts.RefreshInterval,
		livenessWindow:    opts.LivenessWindow,
		loadFn:            opts.Load,
		workers:           make(map[string]*domain.Worker),
		addons:            make(map[string][]*domain.Addon),
	}
}

// OnAddon sets the hook invoked after every addon upsert or cache
// refresh, once per addon. The coordinator uses it to rebuild routes.
func (r *Registry) OnAddon(fn func(a *domain.Addon)) {
	r.mu.Lock()
	r.onAddon = fn
	r.mu.Unlock()
}

// RegisterSelf upserts this node's worker row and primes the cache.
// Called once at startup.
func (r *Registry) RegisterSelf(ctx context.Context) error {
	if err := r.store.UpsertWorker(ctx, r.self); err != nil {
		return err
	}
	r.logger.Info("worker registered",
		"worker_id", r.self.ID,
		"kind", r.self.Kind,
		"host", r.self.Host,
		"port", r.self.Port)
	return r.Refresh(ctx)
}

// RegisterWorker upserts a worker row and refreshes its cache entry.
func (r *Registry) RegisterWorker(ctx context.Context, w *domain.Worker) error {
	if err := r.store.UpsertWorker(ctx, w); err != nil {
		return err
	}
	cp := *w
	cp.Status = domain.WorkerOnline
	cp.LastHeartbeat = time.Now()
	r.mu.Lock()
	r.workers[cp.ID] = &cp
	r.mu.Unlock()
	return nil
}

// RegisterAddon upserts the (worker, addon) row, updates the cache, and
// fires the route hook for the announced endpoints.
func (r *Registry) RegisterAddon(ctx context.Context, a *domain.Addon) error {
	if err := r.store.UpsertAddon(ctx, a); err != nil {
		return err
	}
	cp := *a
	r.mu.Lock()
	list := r.addons[cp.WorkerID]
	replaced := false
	for i, existing := range list {
		if existing.Name == cp.Name {
			list[i] = &cp
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, &cp)
	}
	r.addons[cp.WorkerID] = list
	hook := r.onAddon
	r.mu.Unlock()

	r.logger.Info("addon registered",
		"worker_id", cp.WorkerID,
		"addon", cp.Name,
		"version", cp.Version,
		"endpoints", len(cp.Endpoints))
	if hook != nil {
		hook(&cp)
	}
	return nil
}

// Available reports whether workerID can currently receive proxied
// calls: known, status online, heartbeat within the liveness window.
func (r *Registry) Available(workerID string) bool {
	r.mu.RLock()
	w, ok := r.workers[workerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return w.AvailableAt(time.Now(), r.livenessWindow)
}

// Worker returns the cached row for workerID.
func (r *Registry) Worker(workerID string) (*domain.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

// Workers returns a snapshot of all cached workers.
func (r *Registry) Workers() []*domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// Addons returns a snapshot of all cached addons.
func (r *Registry) Addons() []*domain.Addon {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Addon
	for _, list := range r.addons {
		for _, a := range list {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// WorkerAddons returns the cached addons announced by one worker.
func (r *Registry) WorkerAddons(workerID string) []*domain.Addon {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.addons[workerID]
	out := make([]*domain.Addon, 0, len(list))
	for _, a := range list {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// LivenessWindow returns the configured heartbeat staleness cutoff.
func (r *Registry) LivenessWindow() time.Duration {
	return r.livenessWindow
}

// Refresh re-reads the full worker and addon tables into the cache and
// fires the route hook for every addon so dynamic routes catch up with
// announcements made on other nodes.
func (r *Registry) Refresh(ctx context.Context) error {
	workers, err := r.store.ListWorkers(ctx)
	if err != nil {
		return err
	}
	addons, err := r.store.ListAddons(ctx)
	if err != nil {
		return err
	}

	workerMap := make(map[string]*domain.Worker, len(workers))
	for _, w := range workers {
		workerMap[w.ID] = w
	}
	addonMap := make(map[string][]*domain.Addon)
	for _, a := range addons {
		addonMap[a.WorkerID] = append(addonMap[a.WorkerID], a)
	}

	r.mu.Lock()
	r.workers = workerMap
	r.addons = addonMap
	hook := r.onAddon
	r.mu.Unlock()

	if hook != nil {
		for _, a := range addons {
			hook(a)
		}
	}
	return nil
}

// RunHeartbeat refreshes this node's last_heartbeat and load gauges on a
// fixed interval until ctx is canceled. Must be run in a goroutine.
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, max := r.loadFn()
			if err := r.store.Heartbeat(ctx, r.self.ID, current, max); err != nil {
				r.logger.Error("heartbeat failed", "worker_id", r.self.ID, "err", err)
			}
		}
	}
}

// RunRefresh re-reads the registry tables on a fixed interval until ctx
// is canceled. Must be run in a goroutine.
func (r *Registry) RunRefresh(ctx context.Context) {
	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("registry refresh failed", "err", err)
			}
		}
	}
}

// Shutdown best-effort marks this node offline. An unclean crash skips
// this; readers then rely on the liveness window.
func (r *Registry) Shutdown(ctx context.Context) {
	if err := r.store.MarkWorkerOffline(ctx, r.self.ID); err != nil {
		r.logger.Warn("mark offline failed", "worker_id", r.self.ID, "err", err)
		return
	}
	r.logger.Info("worker marked offline", "worker_id", r.self.ID)
}
