package fsm

import (
	"container/heap"
	"time"

	"github.com/kongzii/open-autonomy/types"
)

// timeoutEntry schedules one synthesized event. gen ties the entry to the
// round that scheduled it; entries outlived by their round are discarded
// unfired.
type timeoutEntry struct {
	deadline time.Time
	event    types.Event
	gen      int64
}

// timeoutQueue is a min-heap of pending timeouts ordered by deadline.
// Deadlines are block timestamps, never wall-clock readings, so every
// replica expires them identically.
type timeoutQueue struct {
	entries timeoutHeap
}

func newTimeoutQueue() *timeoutQueue {
	return &timeoutQueue{}
}

func (q *timeoutQueue) push(deadline time.Time, ev types.Event, gen int64) {
	heap.Push(&q.entries, timeoutEntry{deadline: deadline, event: ev, gen: gen})
}

// popExpired returns the earliest entry due at or before t that belongs to
// generation gen. Stale entries encountered along the way are dropped
// unfired. Callers loop: firing one entry may advance the round and bump the
// generation, invalidating whatever else was pending.
func (q *timeoutQueue) popExpired(t time.Time, gen int64) (timeoutEntry, bool) {
	for q.entries.Len() > 0 {
		next := q.entries[0]
		if next.deadline.After(t) {
			break
		}
		heap.Pop(&q.entries)
		if next.gen != gen {
			continue
		}
		return next, true
	}
	return timeoutEntry{}, false
}

type timeoutHeap []timeoutEntry

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timeoutHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeoutHeap) Push(x interface{}) { *h = append(*h, x.(timeoutEntry)) }
func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
