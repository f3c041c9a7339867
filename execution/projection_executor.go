package execution

import (
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// ProjectionExecutor evaluates a list of expressions on the input tuples
// and produces a new tuple containing the results of those expressions.
type ProjectionExecutor struct {
	plan  *planner.ProjectionNode
	child Executor

	// Runtime state
	projected []common.Value
	err       error
}

// NewProjectionExecutor creates a new ProjectionExecutor.
func NewProjectionExecutor(plan *planner.ProjectionNode, child Executor) *ProjectionExecutor {
	return &ProjectionExecutor{
		child: child,
		plan:  plan,
	}
}

func (e *ProjectionExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *ProjectionExecutor) Init(ctx *ExecutorContext) error {
	e.projected = make([]common.Value, len(e.plan.Expressions))
	e.err = nil
	return e.child.Init(ctx)
}

func (e *ProjectionExecutor) Next() bool {
	if !e.child.Next() {
		e.err = e.child.Error()
		return false
	}

	childTuple := e.child.Current()
	for i, expr := range e.plan.Expressions {
		e.projected[i] = expr.Eval(childTuple)
	}
	return true
}

func (e *ProjectionExecutor) Current() storage.Tuple {
	return storage.FromValues(e.projected...)
}

func (e *ProjectionExecutor) Error() error {
	return e.err
}

func (e *ProjectionExecutor) Close() error {
	return e.child.Close()
}
