package domain

import "time"

type WorkerKind string

const (
	KindCoordinator WorkerKind = "coordinator"
	KindWorker      WorkerKind = "worker"
)

type WorkerStatus string

const (
	WorkerOnline      WorkerStatus = "online"
	WorkerOffline     WorkerStatus = "offline"
	WorkerMaintenance WorkerStatus = "maintenance"
)

// Worker is a registered cluster node. Upserted at startup, heartbeat
// refreshed on a fixed interval, marked offline on graceful shutdown.
type Worker struct {
	ID            string            `json:"id"`
	DisplayName   string            `json:"display_name"`
	Kind          WorkerKind        `json:"kind"`
	Host          string            `json:"host"`
	Port          int               `json:"port"`
	CurrentLoad   int               `json:"current_load"`
	MaxLoad       int               `json:"max_load"`
	Status        WorkerStatus      `json:"status"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AvailableAt reports whether the worker should be treated as reachable
// at instant now: stored status online AND heartbeat within window.
// A stale heartbeat overrides a stale online flag left by a crash.
func (w *Worker) AvailableAt(now time.Time, window time.Duration) bool {
	if w.Status != WorkerOnline {
		return false
	}
	return now.Sub(w.LastHeartbeat) <= window
}

// EndpointDef describes one HTTP endpoint an addon exposes on its
// worker's local listener.
type EndpointDef struct {
	Path         string   `json:"path"`
	Methods      []string `json:"methods"`
	AuthRequired bool     `json:"auth_required"`
	Summary      string   `json:"summary,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Addon is a worker-local extension and the endpoints it announced.
// Keyed by (worker id, addon name); stale rows persist until superseded.
type Addon struct {
	WorkerID     string        `json:"worker_id"`
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Enabled      bool          `json:"enabled"`
	Endpoints    []EndpointDef `json:"endpoints"`
	Spec         []byte        `json:"spec,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
