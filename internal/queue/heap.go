package queue

import (
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

// entry is the queue's record of one job. gen changes whenever the job is
// re-queued; heap items carrying an older gen are stale and skipped on pop.
type entry struct {
	job domain.Job
	seq uint64
	gen uint64
}

// item is a heap element. Its ordering keys are copied in at push time so
// later mutations of the entry never break heap order.
type item struct {
	e      *entry
	gen    uint64
	weight int
	seq    uint64
	at     time.Time
}

func (it item) live() bool {
	return it.gen == it.e.gen && it.e.job.Status == domain.JobStatusPending
}

// readyHeap orders eligible jobs by priority weight desc, then enqueue order.
type readyHeap []item

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = item{}
	*h = old[:n-1]
	return it
}

// delayedHeap orders jobs by the time they become eligible.
type delayedHeap []item

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].seq < h[j].seq
}

func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = item{}
	*h = old[:n-1]
	return it
}
