package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// Memory is an in-process Store used by tests and single-node setups.
// It mirrors the Postgres implementation's semantics: statement-level
// operations, guarded status transitions, consume-on-take responses.
type Memory struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]*domain.Request
	responses map[uuid.UUID]*domain.Response
	workers   map[string]*domain.Worker
	addons    map[string]map[string]*domain.Addon
}

func NewMemory() *Memory {
	return &Memory{
		requests:  make(map[uuid.UUID]*domain.Request),
		responses: make(map[uuid.UUID]*domain.Response),
		workers:   make(map[string]*domain.Worker),
		addons:    make(map[string]map[string]*domain.Addon),
	}
}

func (m *Memory) InsertRequest(_ context.Context, req *domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.Status = domain.StatusPending
	m.requests[cp.ID] = &cp
	return nil
}

func (m *Memory) ListPendingRequests(_ context.Context, workerID string, limit int) ([]*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reqs []*domain.Request
	for _, r := range m.requests {
		if r.TargetWorkerID == workerID && r.Status == domain.StatusPending {
			cp := *r
			reqs = append(reqs, &cp)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Priority != reqs[j].Priority {
			return reqs[i].Priority > reqs[j].Priority
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (m *Memory) GetRequest(_ context.Context, id uuid.UUID) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) MarkRequestProcessing(_ context.Context, id uuid.UUID) error {
	return m.mark(id, domain.StatusProcessing, domain.StatusPending)
}

func (m *Memory) MarkRequestCompleted(_ context.Context, id uuid.UUID) error {
	return m.mark(id, domain.StatusCompleted, domain.StatusProcessing)
}

func (m *Memory) MarkRequestFailed(_ context.Context, id uuid.UUID) error {
	return m.mark(id, domain.StatusFailed, domain.StatusProcessing)
}

func (m *Memory) mark(id uuid.UUID, to, from domain.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return ErrNotFound
	}
	now := time.Now()
	r.Status = to
	r.ProcessedAt = &now
	return nil
}

func (m *Memory) InsertResponse(_ context.Context, resp *domain.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *resp
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.responses[cp.RequestID] = &cp
	return nil
}

func (m *Memory) TakeResponses(_ context.Context, ids []uuid.UUID) ([]*domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var resps []*domain.Response
	for _, id := range ids {
		if r, ok := m.responses[id]; ok {
			delete(m.responses, id)
			resps = append(resps, r)
		}
	}
	return resps, nil
}

func (m *Memory) PurgeExpiredResponses(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.responses {
		if r.CreatedAt.Before(cutoff) {
			delete(m.responses, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpsertWorker(_ context.Context, w *domain.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	cp.Status = domain.WorkerOnline
	cp.LastHeartbeat = time.Now()
	if prev, ok := m.workers[cp.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.workers[cp.ID] = &cp
	return nil
}

func (m *Memory) Heartbeat(_ context.Context, workerID string, currentLoad, maxLoad int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return ErrNotFound
	}
	w.LastHeartbeat = time.Now()
	w.CurrentLoad = currentLoad
	w.MaxLoad = maxLoad
	return nil
}

func (m *Memory) MarkWorkerOffline(_ context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[workerID]; ok {
		w.Status = domain.WorkerOffline
	}
	return nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]*domain.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var workers []*domain.Worker
	for _, w := range m.workers {
		cp := *w
		workers = append(workers, &cp)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers, nil
}

// SetWorker overwrites a worker row verbatim. Test hook for shaping
// heartbeat age and status without going through the upsert path.
func (m *Memory) SetWorker(w *domain.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.workers[cp.ID] = &cp
}

func (m *Memory) UpsertAddon(_ context.Context, a *domain.Addon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	now := time.Now()
	byName, ok := m.addons[cp.WorkerID]
	if !ok {
		byName = make(map[string]*domain.Addon)
		m.addons[cp.WorkerID] = byName
	}
	if prev, ok := byName[cp.Name]; ok {
		cp.RegisteredAt = prev.RegisteredAt
	} else {
		cp.RegisteredAt = now
	}
	cp.UpdatedAt = now
	byName[cp.Name] = &cp
	return nil
}

func (m *Memory) ListAddons(_ context.Context) ([]*domain.Addon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var addons []*domain.Addon
	for _, byName := range m.addons {
		for _, a := range byName {
			cp := *a
			addons = append(addons, &cp)
		}
	}
	sort.Slice(addons, func(i, j int) bool {
		if addons[i].WorkerID != addons[j].WorkerID {
			return addons[i].WorkerID < addons[j].WorkerID
		}
		return addons[i].Name < addons[j].Name
	})
	return addons, nil
}

func (m *Memory) ListWorkerAddons(_ context.Context, workerID string) ([]*domain.Addon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var addons []*domain.Addon
	for _, a := range m.addons[workerID] {
		cp := *a
		addons = append(addons, &cp)
	}
	sort.Slice(addons, func(i, j int) bool { return addons[i].Name < addons[j].Name })
	return addons, nil
}
