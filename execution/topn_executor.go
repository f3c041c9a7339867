package execution

import (
	"container/heap"
	"sort"

	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// TopNExecutor keeps the first Limit rows of its input in sort order using a bounded max-heap. Ties are broken by
// arrival order, so the output equals a stable sort followed by a limit.
type TopNExecutor struct {
	plan  *planner.TopNNode
	child Executor
	desc  *storage.RawTupleDesc

	sortedTuples []storage.Tuple
	computed     bool
	currentIndex int
	err          error
}

func NewTopNExecutor(plan *planner.TopNNode, child Executor) *TopNExecutor {
	return &TopNExecutor{
		plan:  plan,
		child: child,
		desc:  storage.NewRawTupleDesc(plan.OutputSchema().Types()),
	}
}

func (e *TopNExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *TopNExecutor) Init(ctx *ExecutorContext) error {
	e.sortedTuples = nil
	e.computed = false
	e.currentIndex = -1
	e.err = nil
	return e.child.Init(ctx)
}

func compareTuples(t1, t2 storage.Tuple, orderBy []planner.OrderByClause) int {
	for _, order := range orderBy {
		v1 := order.Expr.Eval(t1)
		v2 := order.Expr.Eval(t2)
		cmp := v1.Compare(v2)
		if cmp == 0 {
			continue
		}

		if order.Direction == planner.SortOrderAscending {
			return cmp
		}
		return -cmp
	}
	return 0
}

type rankedTuple struct {
	tuple storage.Tuple
	seq   int
}

// tupleHeap is a max-heap: the root is the row that would be emitted last.
type tupleHeap struct {
	tuples  []rankedTuple
	orderBy []planner.OrderByClause
}

func (h *tupleHeap) compare(a, b rankedTuple) int {
	if c := compareTuples(a.tuple, b.tuple, h.orderBy); c != 0 {
		return c
	}
	return a.seq - b.seq
}

func (h *tupleHeap) Len() int { return len(h.tuples) }

func (h *tupleHeap) Swap(i, j int) { h.tuples[i], h.tuples[j] = h.tuples[j], h.tuples[i] }

func (h *tupleHeap) Less(i, j int) bool {
	return h.compare(h.tuples[i], h.tuples[j]) > 0
}

func (h *tupleHeap) Push(x any) {
	h.tuples = append(h.tuples, x.(rankedTuple))
}

func (h *tupleHeap) Pop() any {
	old := h.tuples
	n := len(old)
	x := old[n-1]
	h.tuples = old[0 : n-1]
	return x
}

func (e *TopNExecutor) computeTopN() error {
	h := &tupleHeap{
		tuples:  make([]rankedTuple, 0, e.plan.Limit+1),
		orderBy: e.plan.OrderBy,
	}

	seq := 0
	for e.child.Next() {
		if e.plan.Limit == 0 {
			continue
		}
		current := rankedTuple{tuple: e.child.Current(), seq: seq}
		seq++
		if h.Len() == e.plan.Limit {
			// Later arrivals lose ties, so only a strictly smaller row displaces the root.
			if h.compare(current, h.tuples[0]) >= 0 {
				continue
			}
			heap.Pop(h)
		}
		current.tuple = current.tuple.DeepCopy(e.desc)
		heap.Push(h, current)
	}

	if err := e.child.Error(); err != nil {
		return err
	}

	sort.Slice(h.tuples, func(i, j int) bool {
		return h.compare(h.tuples[i], h.tuples[j]) < 0
	})
	e.sortedTuples = make([]storage.Tuple, len(h.tuples))
	for i, r := range h.tuples {
		e.sortedTuples[i] = r.tuple
	}
	return nil
}

func (e *TopNExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.computed {
		e.err = e.computeTopN()
		e.computed = true
		if e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.sortedTuples)
}

func (e *TopNExecutor) Current() storage.Tuple {
	return e.sortedTuples[e.currentIndex]
}

func (e *TopNExecutor) Error() error {
	return e.err
}

func (e *TopNExecutor) Close() error {
	e.sortedTuples = nil
	return e.child.Close()
}
