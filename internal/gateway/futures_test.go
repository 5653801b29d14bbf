package gateway

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

func TestFutureResolve(t *testing.T) {
	ft := newFutureTable()
	id := uuid.New()
	ch := ft.register(id)

	resp := &domain.Response{RequestID: id, StatusCode: 200, Body: "pong"}
	if !ft.resolve(resp) {
		t.Fatal("resolve returned false for a registered future")
	}

	got := <-ch
	if got.Body != "pong" || got.StatusCode != 200 {
		t.Errorf("unexpected response: %+v", got)
	}

	// The entry is gone; a second response for the same id is dropped.
	if ft.resolve(resp) {
		t.Error("resolve succeeded twice for the same id")
	}
}

func TestFutureAbandon(t *testing.T) {
	ft := newFutureTable()
	id := uuid.New()
	ft.register(id)
	ft.abandon(id)

	if len(ft.ids()) != 0 {
		t.Errorf("expected no pending ids after abandon, got %v", ft.ids())
	}

	// A late response after the local deadline must be a no-op.
	if ft.resolve(&domain.Response{RequestID: id}) {
		t.Error("resolve succeeded for an abandoned future")
	}
}

func TestFutureIDs(t *testing.T) {
	ft := newFutureTable()
	if ids := ft.ids(); ids != nil {
		t.Errorf("expected nil for empty table, got %v", ids)
	}

	a, b := uuid.New(), uuid.New()
	ft.register(a)
	ft.register(b)

	ids := ft.ids()
	if len(ids) != 2 {
		t.Fatalf("expected 2 pending ids, got %d", len(ids))
	}
	seen := map[uuid.UUID]bool{ids[0]: true, ids[1]: true}
	if !seen[a] || !seen[b] {
		t.Errorf("ids missing registered entries: %v", ids)
	}
}
