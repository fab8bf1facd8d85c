// Package mail implements the MailAgent external-facing component of
// spec.md §4.2: a bounded priority queue of outbound messages, SMTPS/
// STARTTLS delivery with retry and circuit-breaking, per-group predicate
// gating, a per-group GET callback, and final-dispatch dedup serialized
// against the Scheduler. It follows the original email package's shape —
// worker.go's persistent-connection send loop, resilience.go's circuit
// breaker and retry policy, sender.go's MIME construction, and
// webhook.go's fire-and-forget HTTP notification — generalized from
// campaign-batch delivery to single-device alert delivery.
package mail

import (
	"time"

	"github.com/lebensspur/sentinel/internal/types"
)

// Capacity is the maximum number of items the queue holds at once, per
// spec.md §4.2.
const Capacity = 5

// Item is one outbound message awaiting delivery.
type Item struct {
	ID         string
	Priority   types.Priority
	Template   types.TemplateKind
	Origin     types.Origin
	Group      types.MailGroup
	Context    types.DispatchContext
	EnqueuedAt time.Time
}

// queue is a priority-ordered, FIFO-within-priority, fixed-capacity list.
// It is not safe for concurrent use; MailAgent guards it with its own
// mutex.
type queue struct {
	items []Item
}

// enqueue inserts it in priority order (ascending Priority value, i.e.
// PriorityHigh first), preserving arrival order among equal priorities.
// When the queue is already at Capacity:
//
//   - if it is itself low priority, it is the one dropped (spec.md §4.2:
//     "overflow drops newest low-priority" — the incoming item is the
//     newest arrival);
//   - otherwise the oldest low-priority item already queued is evicted to
//     make room; if none exists, the incoming item is dropped rather than
//     evicting anything of equal or higher importance.
//
// enqueue returns false when it was dropped.
func (q *queue) enqueue(it Item) bool {
	if len(q.items) >= Capacity {
		if it.Priority == types.PriorityLow {
			return false
		}
		if !q.evictOldestLow() {
			return false
		}
	}

	pos := len(q.items)
	for i, existing := range q.items {
		if existing.Priority > it.Priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, Item{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = it
	return true
}

func (q *queue) evictOldestLow() bool {
	for i, it := range q.items {
		if it.Priority == types.PriorityLow {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// dequeue removes and returns the head of the queue (highest priority,
// oldest on ties), or ok=false if empty.
func (q *queue) dequeue() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

func (q *queue) len() int { return len(q.items) }
