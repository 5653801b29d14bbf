package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

func TestPendingOrdering(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	base := time.Now()

	// Same priority: oldest first. Higher priority jumps the line.
	low1 := &domain.Request{ID: uuid.New(), TargetWorkerID: "alpha", Priority: 0, CreatedAt: base}
	low2 := &domain.Request{ID: uuid.New(), TargetWorkerID: "alpha", Priority: 0, CreatedAt: base.Add(time.Second)}
	high := &domain.Request{ID: uuid.New(), TargetWorkerID: "alpha", Priority: 5, CreatedAt: base.Add(2 * time.Second)}
	other := &domain.Request{ID: uuid.New(), TargetWorkerID: "beta", Priority: 9, CreatedAt: base}

	for _, r := range []*domain.Request{low1, low2, high, other} {
		if err := mem.InsertRequest(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := mem.ListPendingRequests(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 pending for alpha, got %d", len(got))
	}
	want := []uuid.UUID{high.ID, low1.ID, low2.ID}
	for i, r := range got {
		if r.ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, r.ID, want[i])
		}
	}

	// Batch bound.
	got, err = mem.ListPendingRequests(ctx, "alpha", 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected limit of 2, got %d", len(got))
	}
}

func TestStatusTransitionsGuarded(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	req := &domain.Request{ID: uuid.New(), TargetWorkerID: "alpha"}
	if err := mem.InsertRequest(ctx, req); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Completing a pending request skips the processing step and must fail.
	if err := mem.MarkRequestCompleted(ctx, req.ID); err != ErrNotFound {
		t.Errorf("completed before processing: got %v, want ErrNotFound", err)
	}

	if err := mem.MarkRequestProcessing(ctx, req.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	// Second pick-up of the same row loses the guard.
	if err := mem.MarkRequestProcessing(ctx, req.ID); err != ErrNotFound {
		t.Errorf("double mark processing: got %v, want ErrNotFound", err)
	}

	if err := mem.MarkRequestCompleted(ctx, req.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := mem.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("status: got %s, want %s", got.Status, domain.StatusCompleted)
	}
	if got.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}
}

func TestTakeResponsesConsumesOnce(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	id := uuid.New()
	resp := &domain.Response{RequestID: id, WorkerID: "alpha", StatusCode: 200, Body: "pong"}
	if err := mem.InsertResponse(ctx, resp); err != nil {
		t.Fatalf("insert response: %v", err)
	}

	// Two pollers racing for the same id: exactly one delivery in total.
	var mu sync.Mutex
	var delivered int
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := mem.TakeResponses(ctx, []uuid.UUID{id})
			if err != nil {
				t.Errorf("take: %v", err)
				return
			}
			mu.Lock()
			delivered += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if delivered != 1 {
		t.Errorf("expected exactly one delivery, got %d", delivered)
	}
}

func TestPurgeExpiredResponses(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	old := &domain.Response{RequestID: uuid.New(), CreatedAt: time.Now().Add(-2 * time.Minute)}
	fresh := &domain.Response{RequestID: uuid.New(), CreatedAt: time.Now()}
	for _, r := range []*domain.Response{old, fresh} {
		if err := mem.InsertResponse(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := mem.PurgeExpiredResponses(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}

	got, err := mem.TakeResponses(ctx, []uuid.UUID{old.RequestID, fresh.RequestID})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != fresh.RequestID {
		t.Errorf("expected only the fresh response to survive, got %v", got)
	}
}
