package domain

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Request is one proxied call stored in the requests mailbox, addressed
// to a single worker. The id doubles as the correlation id linking it to
// its eventual Response.
type Request struct {
	ID             uuid.UUID         `json:"id"`
	TargetWorkerID string            `json:"target_worker_id"`
	EndpointPath   string            `json:"endpoint_path"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	QueryParams    map[string]string `json:"query_params,omitempty"`
	Body           string            `json:"body,omitempty"`
	Status         RequestStatus     `json:"status"`
	Priority       int               `json:"priority"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	CreatedAt      time.Time         `json:"created_at"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
}

// Timeout returns the coordinator-side wait deadline for this request.
func (r *Request) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}
