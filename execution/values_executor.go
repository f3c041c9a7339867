package execution

import (
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// ValuesExecutor emits the literal rows of a ValuesNode.
type ValuesExecutor struct {
	plan *planner.ValuesNode
	next int
}

func NewValuesExecutor(plan *planner.ValuesNode) *ValuesExecutor {
	return &ValuesExecutor{plan: plan}
}

func (e *ValuesExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *ValuesExecutor) Init(ctx *ExecutorContext) error {
	e.next = 0
	return nil
}

func (e *ValuesExecutor) Next() bool {
	if e.next >= len(e.plan.Rows) {
		return false
	}
	e.next++
	return true
}

func (e *ValuesExecutor) Current() storage.Tuple {
	return storage.FromValues(e.plan.Rows[e.next-1]...)
}

func (e *ValuesExecutor) Error() error {
	return nil
}

func (e *ValuesExecutor) Close() error {
	return nil
}
