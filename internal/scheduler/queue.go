package scheduler

import (
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// item is one scheduled target. index is its heap position, -1 while the
// target is running. checked is the last check the due time was derived
// from.
type item struct {
	id      domain.TargetID
	due     time.Time
	checked time.Time
	index   int
}

func lastChecked(t domain.Target) time.Time {
	if t.LastCheckAt == nil {
		return time.Time{}
	}
	return *t.LastCheckAt
}

// dueQueue is a min-heap on due time, for container/heap.
type dueQueue []*item

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].id < q[j].id
	}
	return q[i].due.Before(q[j].due)
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
