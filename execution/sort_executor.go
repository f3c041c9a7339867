package execution

import (
	"sort"

	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// SortExecutor sorts the input tuples based on the provided ordering expressions. Rows that compare equal on every
// key keep their input order.
// It is a blocking operator but uses lazy evaluation (sorts on first Next).
type SortExecutor struct {
	plan  *planner.SortNode
	child Executor
	desc  *storage.RawTupleDesc

	// Runtime state
	sortedTuples []storage.Tuple
	currentIndex int
	err          error
}

func NewSortExecutor(plan *planner.SortNode, child Executor) *SortExecutor {
	return &SortExecutor{
		plan:  plan,
		child: child,
		desc:  storage.NewRawTupleDesc(plan.OutputSchema().Types()),
	}
}

func (e *SortExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *SortExecutor) Init(ctx *ExecutorContext) error {
	e.sortedTuples = nil
	e.currentIndex = -1
	e.err = nil
	return e.child.Init(ctx)
}

func (e *SortExecutor) sortAllRows() bool {
	// Scanned tuples point into cached blocks that are released as the scan moves on.
	e.sortedTuples = make([]storage.Tuple, 0)
	for e.child.Next() {
		t := e.child.Current()
		e.sortedTuples = append(e.sortedTuples, t.DeepCopy(e.desc))
	}

	if err := e.child.Error(); err != nil {
		e.err = err
		return false
	}

	sort.SliceStable(e.sortedTuples, func(i, j int) bool {
		t1 := e.sortedTuples[i]
		t2 := e.sortedTuples[j]
		for _, order := range e.plan.OrderBy {
			v1 := order.Expr.Eval(t1)
			v2 := order.Expr.Eval(t2)
			cmp := v1.Compare(v2)
			if cmp == 0 {
				continue
			}
			if order.Direction == planner.SortOrderAscending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return true
}

func (e *SortExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if e.sortedTuples == nil {
		if !e.sortAllRows() {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.sortedTuples)
}

func (e *SortExecutor) Current() storage.Tuple {
	return e.sortedTuples[e.currentIndex]
}

func (e *SortExecutor) Error() error {
	return e.err
}

func (e *SortExecutor) Close() error {
	e.sortedTuples = nil
	return e.child.Close()
}
