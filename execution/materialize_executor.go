package execution

import (
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// materializeExecutor makes its child rescannable. The first pass copies the child's tuples as they stream by;
// each later Init replays the copies and only pulls from the child what the earlier passes did not reach.
type materializeExecutor struct {
	child       Executor
	childSchema *storage.RawTupleDesc

	// Runtime state
	tuples       []storage.Tuple
	childInit    bool
	childDone    bool
	currentIndex int
}

func newMaterializeExecutor(child Executor) *materializeExecutor {
	return &materializeExecutor{
		child:       child,
		childSchema: storage.NewRawTupleDesc(child.PlanNode().OutputSchema().Types()),
	}
}

func (e *materializeExecutor) PlanNode() planner.PlanNode {
	return e.child.PlanNode()
}

func (e *materializeExecutor) Init(ctx *ExecutorContext) error {
	e.currentIndex = -1
	if !e.childInit {
		e.childInit = true
		return e.child.Init(ctx)
	}
	return nil
}

func (e *materializeExecutor) Next() bool {
	e.currentIndex++
	if e.currentIndex < len(e.tuples) {
		return true
	}
	if e.childDone {
		return false
	}
	if e.child.Next() {
		t := e.child.Current()
		e.tuples = append(e.tuples, t.DeepCopy(e.childSchema))
		return true
	}
	e.childDone = true
	return false
}

func (e *materializeExecutor) Current() storage.Tuple {
	return e.tuples[e.currentIndex]
}

func (e *materializeExecutor) Error() error {
	return e.child.Error()
}

// Len returns the number of tuples buffered so far.
func (e *materializeExecutor) Len() int {
	return len(e.tuples)
}

func (e *materializeExecutor) Close() error {
	e.tuples = nil
	return e.child.Close()
}
