package gateway

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// futureTable is the coordinator's process-local map of correlation id
// to waiting caller. An entry lives only for the duration of one call:
// registered before the wait, removed on resolution or abandonment.
type futureTable struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan *domain.Response
}

func newFutureTable() *futureTable {
	return &futureTable{pending: make(map[uuid.UUID]chan *domain.Response)}
}

// register creates the future for id and returns the channel the caller
// waits on. The channel is buffered so resolve never blocks the poller.
func (t *futureTable) register(id uuid.UUID) <-chan *domain.Response {
	ch := make(chan *domain.Response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers resp to the waiter for its request id and removes the
// entry. A late response for an abandoned (timed-out) future is a no-op;
// the future is never resolved twice.
func (t *futureTable) resolve(resp *domain.Response) bool {
	t.mu.Lock()
	ch, ok := t.pending[resp.RequestID]
	if ok {
		delete(t.pending, resp.RequestID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// abandon removes the future for id without resolving it. Called when
// the local deadline fires first.
func (t *futureTable) abandon(id uuid.UUID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// ids returns the correlation ids currently awaiting a response.
func (t *futureTable) ids() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	return ids
}
