package simulator

import (
	"container/heap"
	"slices"

	"github.com/snehjoshi/epochsim/internal/types"
)

// pending is one process waiting in the future queue.
type pending struct {
	proc *types.Process

	// seq is the insertion sequence number; it breaks arrival ties so that
	// simultaneous arrivals are admitted first-in first-out.
	seq uint64

	// heapIdx is the entry's current position in the heap slice.
	heapIdx int
}

// futureQueue is a min-heap ordered by (arrival, seq).
//
//   - peek   O(1): the next arrival is always at index 0.
//   - insert O(log N), no re-sort of the whole queue on CreateProcess.
type futureQueue []*pending

func (h futureQueue) Len() int { return len(h) }

func (h futureQueue) Less(i, j int) bool {
	if h[i].proc.Arrival != h[j].proc.Arrival {
		return h[i].proc.Arrival < h[j].proc.Arrival
	}
	return h[i].seq < h[j].seq
}

func (h futureQueue) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *futureQueue) Push(x any) {
	it := x.(*pending)
	it.heapIdx = len(*h)
	*h = append(*h, it)
}

func (h *futureQueue) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil  // allow GC
	it.heapIdx = -1 // mark as not in heap
	*h = old[:n-1]
	return it
}

func (h *futureQueue) push(p *pending) { heap.Push(h, p) }

// due pops the head if it has arrived by now.
func (h *futureQueue) due(now int) (*pending, bool) {
	if h.Len() == 0 || (*h)[0].proc.Arrival > now {
		return nil, false
	}
	return heap.Pop(h).(*pending), true
}

// ordered returns the queued entries in admission order without disturbing
// the heap.
func (h futureQueue) ordered() []*pending {
	out := slices.Clone([]*pending(h))
	slices.SortFunc(out, func(a, b *pending) int {
		if a.proc.Arrival != b.proc.Arrival {
			return a.proc.Arrival - b.proc.Arrival
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}
