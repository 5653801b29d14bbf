package relay

import (
	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// Envelope is the JSON frame carried on the relay channels. The payload
// fields match the stored rows exactly; only the transport differs from
// the durable mailbox path.
type Envelope struct {
	Type     string           `json:"type"` // "request" | "response"
	Request  *domain.Request  `json:"request,omitempty"`
	Response *domain.Response `json:"response,omitempty"`
}

const (
	typeRequest  = "request"
	typeResponse = "response"
)

// requestChannel is the per-worker inbox for forwarded requests.
func requestChannel(workerID string) string {
	return "catwalk:requests:" + workerID
}

// broadcastChannel carries requests published to all workers.
const broadcastChannel = "catwalk:requests:all"

// responseChannel carries every worker's responses back to the
// coordinators.
const responseChannel = "catwalk:responses"
