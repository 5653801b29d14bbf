// Package relay carries the same request/response payloads as the
// durable mailbox over Redis pub/sub when an in-band channel between
// nodes is available. Delivery is best-effort: the durable store remains
// the source of truth, the relay only shortcuts the poll interval.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

type Relay struct {
	rc     *redis.Client
	logger *slog.Logger
}

func New(rc *redis.Client, logger *slog.Logger) *Relay {
	return &Relay{rc: rc, logger: logger}
}

// PublishRequest forwards a request to its target worker's channel.
func (r *Relay) PublishRequest(ctx context.Context, req *domain.Request) error {
	return r.publish(ctx, requestChannel(req.TargetWorkerID),
		Envelope{Type: typeRequest, Request: req})
}

// BroadcastRequest publishes a request to every subscribed worker.
func (r *Relay) BroadcastRequest(ctx context.Context, req *domain.Request) error {
	return r.publish(ctx, broadcastChannel,
		Envelope{Type: typeRequest, Request: req})
}

// PublishResponse sends a completed response back to the coordinators.
func (r *Relay) PublishResponse(ctx context.Context, resp *domain.Response) error {
	return r.publish(ctx, responseChannel,
		Envelope{Type: typeResponse, Response: resp})
}

func (r *Relay) publish(ctx context.Context, channel string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rc.Publish(ctx, channel, payload).Err()
}

// SubscribeRequests delivers forwarded and broadcast requests for
// workerID to fn until ctx is canceled. Malformed frames are dropped.
// Must be run in a goroutine.
func (r *Relay) SubscribeRequests(ctx context.Context, workerID string, fn func(*domain.Request)) {
	sub := r.rc.Subscribe(ctx, requestChannel(workerID), broadcastChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("relay: bad request frame", "err", err)
				continue
			}
			if env.Type != typeRequest || env.Request == nil {
				continue
			}
			fn(env.Request)
		}
	}
}

// SubscribeResponses delivers incoming responses to fn until ctx is
// canceled. Must be run in a goroutine.
func (r *Relay) SubscribeResponses(ctx context.Context, fn func(*domain.Response)) {
	sub := r.rc.Subscribe(ctx, responseChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("relay: bad response frame", "err", err)
				continue
			}
			if env.Type != typeResponse || env.Response == nil {
				continue
			}
			fn(env.Response)
		}
	}
}
