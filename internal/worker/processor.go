// Package worker runs on each non-coordinating node. It polls the
// request mailbox for items addressed to this node, executes them
// against the node's own local listener, and writes a response row for
// every picked-up request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/relay"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultBatchSize    = 16
)

type Processor struct {
	store    store.Store
	relay    *relay.Relay
	logger   *slog.Logger
	workerID string
	localURL string
	client   *http.Client

	pollInterval time.Duration
	batchSize    int

	startDone     chan struct{}
	startDoneOnce sync.Once
}

// Options tunes the poll loop. Zero values take the defaults. Relay is
// optional; nil leaves the durable poll as the only delivery path.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Client       *http.Client
	Relay        *relay.Relay
}

// New builds a Processor for workerID executing against the local
// listener at localURL (for example "http://127.0.0.1:25580").
func New(st store.Store, workerID, localURL string, logger *slog.Logger, opts Options) *Processor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Processor{
		store:        st,
		relay:        opts.Relay,
		logger:       logger,
		workerID:     workerID,
		localURL:     strings.TrimSuffix(localURL, "/"),
		client:       opts.Client,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		startDone:    make(chan struct{}),
	}
}

// Start runs the poll loop until ctx is canceled. Each batch is bounded
// and processed in (priority desc, created asc) order; requests within a
// batch run synchronously.
func (p *Processor) Start(ctx context.Context) {
	defer p.startDoneOnce.Do(func() { close(p.startDone) })

	p.logger.Info("processor starting",
		"worker_id", p.workerID,
		"local_url", p.localURL,
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// RunRelay processes requests arriving on the in-band channel without
// waiting for the next poll tick. The status guard in Process keeps a
// request picked up by both paths from executing twice. No-op when no
// relay is configured. Must be run in a goroutine.
func (p *Processor) RunRelay(ctx context.Context) {
	if p.relay == nil {
		return
	}
	p.relay.SubscribeRequests(ctx, p.workerID, func(req *domain.Request) {
		if req.TargetWorkerID != p.workerID {
			return
		}
		p.Process(ctx, req)
	})
}

// DrainAndWait blocks until the poll loop exits or the caller's deadline
// is reached.
func (p *Processor) DrainAndWait(ctx context.Context) error {
	select {
	case <-p.startDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) pollOnce(ctx context.Context) {
	reqs, err := p.store.ListPendingRequests(ctx, p.workerID, p.batchSize)
	if err != nil {
		p.logger.Error("poll failed", "worker_id", p.workerID, "err", err)
		return
	}
	for _, req := range reqs {
		if ctx.Err() != nil {
			return
		}
		p.Process(ctx, req)
	}
}

// Process executes one request end to end. The processing mark is
// guarded on status=pending, so a row seen by overlapping pickups runs
// once and the loser skips. A response row is always produced for a
// request this node marked processing, so the coordinator's future
// resolves instead of timing out.
func (p *Processor) Process(ctx context.Context, req *domain.Request) {
	if err := p.store.MarkRequestProcessing(ctx, req.ID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("mark processing failed", "request_id", req.ID, "err", err)
		}
		return
	}

	log := p.logger.With(
		"request_id", req.ID,
		"method", req.Method,
		"path", req.EndpointPath)
	log.Info("request picked up", "priority", req.Priority)

	started := time.Now()
	resp, execErr := p.execute(ctx, req)
	elapsed := time.Since(started).Milliseconds()

	if execErr != nil {
		// Local execution failed: persist a synthetic error response so
		// the caller gets a 500 rather than a timeout.
		log.Warn("local execution failed", "err", execErr)
		resp = p.syntheticFailure(req, execErr)
	}
	resp.ProcessedTimeMs = elapsed

	if err := p.store.InsertResponse(ctx, resp); err != nil {
		log.Error("persist response failed", "err", err)
		if markErr := p.store.MarkRequestFailed(ctx, req.ID); markErr != nil {
			log.Error("mark failed failed", "err", markErr)
		}
		return
	}

	if p.relay != nil {
		if err := p.relay.PublishResponse(ctx, resp); err != nil {
			log.Warn("relay publish failed", "err", err)
		}
	}

	if execErr != nil {
		if err := p.store.MarkRequestFailed(ctx, req.ID); err != nil {
			log.Error("mark failed failed", "err", err)
		}
		return
	}
	if err := p.store.MarkRequestCompleted(ctx, req.ID); err != nil {
		log.Error("mark completed failed", "err", err)
		return
	}
	log.Info("request completed",
		"status_code", resp.StatusCode, "elapsed_ms", elapsed)
}

// execute performs the equivalent call against the local listener.
func (p *Processor) execute(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, req.Timeout())
	defer cancel()

	u, err := url.Parse(p.localURL + req.EndpointPath)
	if err != nil {
		return nil, err
	}
	if len(req.QueryParams) > 0 {
		q := u.Query()
		for k, v := range req.QueryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k, v := range httpResp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &domain.Response{
		RequestID:   req.ID,
		WorkerID:    p.workerID,
		StatusCode:  httpResp.StatusCode,
		Headers:     headers,
		Body:        string(respBody),
		ContentType: httpResp.Header.Get("Content-Type"),
		CreatedAt:   time.Now(),
	}, nil
}

// syntheticFailure builds the well-formed error response persisted when
// the local call itself fails.
func (p *Processor) syntheticFailure(req *domain.Request, execErr error) *domain.Response {
	body, _ := json.Marshal(map[string]string{
		"error": "local execution failed: " + execErr.Error(),
	})
	return &domain.Response{
		RequestID:   req.ID,
		WorkerID:    p.workerID,
		StatusCode:  http.StatusInternalServerError,
		Headers:     map[string]string{},
		Body:        string(body),
		ContentType: "application/json",
		CreatedAt:   time.Now(),
	}
}
