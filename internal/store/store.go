// Package store defines the durable queue and registry storage used as
// the store-and-forward transport between cluster nodes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// ErrNotFound is returned when a row does not exist or a guarded update
// matched no row.
var ErrNotFound = errors.New("store: not found")

// Store is the shared durable state: two mailbox tables (requests,
// responses) plus the worker and addon registry tables. Every mutation
// is an individual statement; there are no cross-table transactions.
type Store interface {
	// Requests: pending mailbox addressed to a worker.
	InsertRequest(ctx context.Context, req *domain.Request) error
	ListPendingRequests(ctx context.Context, workerID string, limit int) ([]*domain.Request, error)
	MarkRequestProcessing(ctx context.Context, id uuid.UUID) error
	MarkRequestCompleted(ctx context.Context, id uuid.UUID) error
	MarkRequestFailed(ctx context.Context, id uuid.UUID) error
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error)

	// Responses: single-consumer mailbox keyed by request id.
	InsertResponse(ctx context.Context, resp *domain.Response) error
	// TakeResponses atomically removes and returns the responses whose
	// request id is in ids. Each row is delivered to exactly one caller
	// even when two coordinators poll concurrently.
	TakeResponses(ctx context.Context, ids []uuid.UUID) ([]*domain.Response, error)
	// PurgeExpiredResponses deletes orphaned responses created before
	// cutoff (rows whose waiter already timed out) and returns the count.
	PurgeExpiredResponses(ctx context.Context, cutoff time.Time) (int64, error)

	// Workers.
	UpsertWorker(ctx context.Context, w *domain.Worker) error
	Heartbeat(ctx context.Context, workerID string, currentLoad, maxLoad int) error
	MarkWorkerOffline(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context) ([]*domain.Worker, error)

	// Addons.
	UpsertAddon(ctx context.Context, a *domain.Addon) error
	ListAddons(ctx context.Context) ([]*domain.Addon, error)
	ListWorkerAddons(ctx context.Context, workerID string) ([]*domain.Addon, error)
}
