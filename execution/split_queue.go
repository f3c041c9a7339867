package execution

import (
	"context"
	"sync"

	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/planner"
)

// splitQueue buffers the splits addressed to one scan node. Producers (the task's AddSplit) and the consuming
// scan executor run on different goroutines.
type splitQueue struct {
	nodeID planner.PlanNodeID

	mu     sync.Mutex
	splits []connector.Split
	noMore bool
	added  int
	// ready is closed (and replaced) whenever the queue changes, waking a blocked consumer.
	ready chan struct{}
}

func newSplitQueue(nodeID planner.PlanNodeID) *splitQueue {
	return &splitQueue{nodeID: nodeID, ready: make(chan struct{})}
}

func (q *splitQueue) signalLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *splitQueue) add(s connector.Split) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.noMore {
		return common.NewError(common.SplitsClosedError, "plan node %s already received no-more-splits", q.nodeID)
	}
	q.splits = append(q.splits, s)
	q.added++
	q.signalLocked()
	return nil
}

// close marks the end of input. Closing twice is a no-op.
func (q *splitQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.noMore {
		return
	}
	q.noMore = true
	q.signalLocked()
}

// next blocks until a split is available or the queue is closed and drained, in which case it returns nil.
func (q *splitQueue) next(ctx context.Context) (connector.Split, error) {
	for {
		q.mu.Lock()
		if len(q.splits) > 0 {
			s := q.splits[0]
			q.splits[0] = nil
			q.splits = q.splits[1:]
			q.mu.Unlock()
			return s, nil
		}
		if q.noMore {
			q.mu.Unlock()
			return nil, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *splitQueue) stats() (added int, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.added, q.noMore
}
