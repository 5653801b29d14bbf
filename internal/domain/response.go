package domain

import (
	"time"

	"github.com/google/uuid"
)

// Response is the single-consumer mailbox entry a worker writes back for
// a Request. At most one authoritative Response exists per request id;
// the coordinator deletes the row on delivery.
type Response struct {
	RequestID       uuid.UUID         `json:"request_id"`
	WorkerID        string            `json:"worker_id"`
	StatusCode      int               `json:"status_code"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	ContentType     string            `json:"content_type"`
	ProcessedTimeMs int64             `json:"processed_time_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}
