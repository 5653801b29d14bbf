// Package gateway turns an inbound HTTP call on the coordinator into a
// stored request addressed to a worker, waits on an in-memory future for
// the matching response, and renders that response back to the caller.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/registry"
	"github.com/ikeepcalm/catwalk-sub000/internal/relay"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultSweepInterval  = 5 * time.Minute
	DefaultTimeoutSeconds = 30
)

// Call carries the inbound request fields the gateway forwards.
type Call struct {
	Method         string
	Headers        map[string]string
	QueryParams    map[string]string
	Body           string
	Priority       int
	TimeoutSeconds int
}

type Gateway struct {
	store    store.Store
	registry *registry.Registry
	relay    *relay.Relay
	logger   *slog.Logger
	futures  *futureTable

	pollInterval    time.Duration
	sweepInterval   time.Duration
	sweepMaxAge     time.Duration
	defaultTimeout  int
	defaultPriority int

	routeMu sync.RWMutex
	routes  map[string]map[string]struct{} // workerID -> endpoint path set
}

// Options tunes the gateway loops and call defaults. Zero values take
// the defaults. Relay is optional; nil keeps the durable store as the
// only transport.
type Options struct {
	PollInterval    time.Duration
	SweepInterval   time.Duration
	SweepMaxAge     time.Duration
	TimeoutSeconds  int
	DefaultPriority int
	Relay           *relay.Relay
}

func New(st store.Store, reg *registry.Registry, logger *slog.Logger, opts Options) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if opts.SweepMaxAge <= 0 {
		// Twice the default wait: anything older has no waiter left.
		opts.SweepMaxAge = 2 * time.Duration(opts.TimeoutSeconds) * time.Second
	}
	g := &Gateway{
		store:           st,
		registry:        reg,
		relay:           opts.Relay,
		logger:          logger,
		futures:         newFutureTable(),
		pollInterval:    opts.PollInterval,
		sweepInterval:   opts.SweepInterval,
		sweepMaxAge:     opts.SweepMaxAge,
		defaultTimeout:  opts.TimeoutSeconds,
		defaultPriority: opts.DefaultPriority,
		routes:          make(map[string]map[string]struct{}),
	}
	reg.OnAddon(g.registerAddonRoutes)
	return g
}

// Proxy forwards one inbound call to targetWorkerID and blocks until the
// worker's response arrives, the per-call deadline fires, or ctx ends.
func (g *Gateway) Proxy(ctx context.Context, targetWorkerID, path string, call Call) Result {
	if targetWorkerID == "" || path == "" || !strings.HasPrefix(path, "/") {
		return invalid("malformed target or path")
	}

	// Availability gate runs before any store write: no Request row is
	// created for a target that cannot be reached.
	if !g.registry.Available(targetWorkerID) {
		return unavailable(targetWorkerID)
	}

	req := &domain.Request{
		ID:             uuid.New(),
		TargetWorkerID: targetWorkerID,
		EndpointPath:   path,
		Method:         call.Method,
		Headers:        call.Headers,
		QueryParams:    call.QueryParams,
		Body:           call.Body,
		Status:         domain.StatusPending,
		Priority:       call.Priority,
		TimeoutSeconds: call.TimeoutSeconds,
		CreatedAt:      time.Now(),
	}
	if req.Priority == 0 {
		req.Priority = g.defaultPriority
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = g.defaultTimeout
	}

	if err := g.store.InsertRequest(ctx, req); err != nil {
		g.logger.Error("persist request failed",
			"request_id", req.ID, "worker_id", targetWorkerID, "err", err)
		return internal()
	}

	ch := g.futures.register(req.ID)

	// Best-effort fast path; the worker's durable poll picks the row up
	// regardless.
	if g.relay != nil {
		if err := g.relay.PublishRequest(ctx, req); err != nil {
			g.logger.Warn("relay publish failed", "request_id", req.ID, "err", err)
		}
	}

	g.logger.Info("request dispatched",
		"request_id", req.ID,
		"worker_id", targetWorkerID,
		"method", req.Method,
		"path", path,
		"timeout_seconds", req.TimeoutSeconds)

	timer := time.NewTimer(req.Timeout())
	defer timer.Stop()

	select {
	case resp := <-ch:
		return success(resp)
	case <-timer.C:
		// Local deadline only: the stored row is left untouched and the
		// worker is not notified.
		g.futures.abandon(req.ID)
		g.logger.Warn("request timed out",
			"request_id", req.ID, "worker_id", targetWorkerID)
		return timeout()
	case <-ctx.Done():
		g.futures.abandon(req.ID)
		return timeout()
	}
}

// RunResponsePoll queries the response mailbox for currently pending
// correlation ids on a fixed interval and resolves the matching futures.
// Each consumed row was deleted by the take, so a response is delivered
// to exactly one waiter. Must be run in a goroutine.
func (g *Gateway) RunResponsePoll(ctx context.Context) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.pollResponses(ctx)
		}
	}
}

func (g *Gateway) pollResponses(ctx context.Context) {
	ids := g.futures.ids()
	if len(ids) == 0 {
		return
	}
	resps, err := g.store.TakeResponses(ctx, ids)
	if err != nil {
		g.logger.Error("response poll failed", "err", err)
		return
	}
	for _, resp := range resps {
		g.deliver(resp)
	}
}

// deliver resolves the future for resp. Shared by the durable poll and
// the relay subscriber.
func (g *Gateway) deliver(resp *domain.Response) {
	if g.futures.resolve(resp) {
		g.logger.Info("response delivered",
			"request_id", resp.RequestID,
			"worker_id", resp.WorkerID,
			"status_code", resp.StatusCode,
			"processed_time_ms", resp.ProcessedTimeMs)
	}
}

// RunRelay subscribes to the in-band response channel and resolves
// futures as responses arrive, skipping the poll interval. No-op when no
// relay is configured. Must be run in a goroutine.
func (g *Gateway) RunRelay(ctx context.Context) {
	if g.relay == nil {
		return
	}
	g.relay.SubscribeResponses(ctx, g.deliver)
}

// RunSweep periodically purges orphaned responses: rows written by a
// worker after the coordinator's local deadline already removed the
// waiting future. Must be run in a goroutine.
func (g *Gateway) RunSweep(ctx context.Context) {
	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.store.PurgeExpiredResponses(ctx, time.Now().Add(-g.sweepMaxAge))
			if err != nil {
				g.logger.Error("response sweep failed", "err", err)
				continue
			}
			if n > 0 {
				g.logger.Info("purged orphaned responses", "count", n)
			}
		}
	}
}

// PendingCount reports the number of in-flight futures. Used by the
// health probe and by tests.
func (g *Gateway) PendingCount() int {
	return len(g.futures.ids())
}
