package mail

import (
	"testing"

	"github.com/lebensspur/sentinel/internal/types"
)

func TestQueue_PriorityOrdering(t *testing.T) {
	var q queue
	q.enqueue(Item{ID: "low", Priority: types.PriorityLow})
	q.enqueue(Item{ID: "high", Priority: types.PriorityHigh})
	q.enqueue(Item{ID: "normal", Priority: types.PriorityNormal})

	order := []string{"high", "normal", "low"}
	for _, want := range order {
		got, ok := q.dequeue()
		if !ok || got.ID != want {
			t.Fatalf("expected %s, got %+v (ok=%v)", want, got, ok)
		}
	}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	var q queue
	q.enqueue(Item{ID: "first", Priority: types.PriorityNormal})
	q.enqueue(Item{ID: "second", Priority: types.PriorityNormal})

	got, _ := q.dequeue()
	if got.ID != "first" {
		t.Fatalf("expected FIFO order within a priority, got %s first", got.ID)
	}
}

func TestQueue_OverflowDropsNewestLow(t *testing.T) {
	var q queue
	for i := 0; i < Capacity; i++ {
		if !q.enqueue(Item{ID: "seed", Priority: types.PriorityNormal}) {
			t.Fatalf("seed enqueue %d unexpectedly dropped", i)
		}
	}
	if q.enqueue(Item{ID: "overflow-low", Priority: types.PriorityLow}) {
		t.Fatalf("expected a new low-priority item to be dropped when full")
	}
	if q.len() != Capacity {
		t.Fatalf("expected queue to remain at capacity, got %d", q.len())
	}
}

func TestQueue_HighPriorityEvictsOldestLow(t *testing.T) {
	var q queue
	q.enqueue(Item{ID: "low-1", Priority: types.PriorityLow})
	for i := 0; i < Capacity-1; i++ {
		q.enqueue(Item{ID: "normal", Priority: types.PriorityNormal})
	}
	if q.len() != Capacity {
		t.Fatalf("expected queue full, got %d", q.len())
	}

	if !q.enqueue(Item{ID: "urgent", Priority: types.PriorityHigh}) {
		t.Fatalf("expected high-priority item to evict the low-priority one")
	}
	if q.len() != Capacity {
		t.Fatalf("expected queue to stay at capacity after eviction, got %d", q.len())
	}
	for _, it := range q.items {
		if it.ID == "low-1" {
			t.Fatalf("expected the low-priority item to have been evicted")
		}
	}
}

func TestQueue_FullOfHighPriorityDropsIncoming(t *testing.T) {
	var q queue
	for i := 0; i < Capacity; i++ {
		q.enqueue(Item{ID: "urgent", Priority: types.PriorityHigh})
	}
	if q.enqueue(Item{ID: "one-more", Priority: types.PriorityHigh}) {
		t.Fatalf("expected enqueue to fail when no low-priority victim exists")
	}
}
