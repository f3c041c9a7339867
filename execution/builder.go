package execution

import (
	"github.com/cockroachdb/errors"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
)

// buildExecutor instantiates the executor tree for plan. splitQueues supplies the split queue of every table scan
// in the tree.
func buildExecutor(plan planner.PlanNode, splitQueues func(planner.PlanNodeID) (*splitQueue, bool)) (Executor, error) {
	switch n := plan.(type) {
	case *planner.TableScanNode:
		q, ok := splitQueues(n.ID())
		if !ok {
			return nil, common.NewError(common.NoSuchObjectError, "no split queue for table scan %s", n.ID())
		}
		return NewTableScanExecutor(n, q), nil
	case *planner.ValuesNode:
		return NewValuesExecutor(n), nil
	case *planner.FilterNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewFilter(n, child), nil
	case *planner.ProjectionNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewProjectionExecutor(n, child), nil
	case *planner.SortNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewSortExecutor(n, child), nil
	case *planner.LimitNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewLimitExecutor(n, child), nil
	case *planner.TopNNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewTopNExecutor(n, child), nil
	case *planner.HashJoinNode:
		left, err := buildExecutor(n.Left, splitQueues)
		if err != nil {
			return nil, err
		}
		right, err := buildExecutor(n.Right, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewHashJoinExecutor(n, left, right), nil
	case *planner.NestedLoopJoinNode:
		left, err := buildExecutor(n.Left, splitQueues)
		if err != nil {
			return nil, err
		}
		right, err := buildExecutor(n.Right, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoinExecutor(n, left, right), nil
	case *planner.MergeJoinNode:
		left, err := buildExecutor(n.Left, splitQueues)
		if err != nil {
			return nil, err
		}
		right, err := buildExecutor(n.Right, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewMergeJoinExecutor(n, left, right), nil
	case *planner.AggregationNode:
		child, err := buildExecutor(n.Child, splitQueues)
		if err != nil {
			return nil, err
		}
		return NewAggregateExecutor(n, child), nil
	}
	return nil, errors.Newf("no executor for plan node %s (%T)", plan.ID(), plan)
}
